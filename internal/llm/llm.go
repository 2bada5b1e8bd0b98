// Package llm implements a reference instance of the LLM orchestration boundary
// (spec.md §6). The core (store, sync, graph, tracer) never calls an LLM directly: it
// only exposes "what needs annotating next" queries and a callback to persist a
// narrated result. This package, and cmd/codeindex's annotate subcommand, are the only
// callers on the other side of that boundary, and both are swappable — a different
// orchestration implementation could replace this package without touching the core.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"codeindex/internal/config"
)

// Client narrates relationships using Google's Gemini API, grounded on the genai
// wiring internal/embedding/genai.go uses for embeddings, adapted here to a plain
// text-generation call instead.
type Client struct {
	genai   *genai.Client
	model   string
	timeout time.Duration
}

// NewClient builds a Client from the workspace's LLM config. It fails fast when no API
// key is configured rather than deferring the error to the first annotation call.
func NewClient(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			timeout = d
		}
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return &Client{genai: c, model: model, timeout: timeout}, nil
}

// Narrate asks the model for a short, one-sentence semantic description of a
// relationship given its enhanced context, and returns the trimmed response text.
func (c *Client) Narrate(ctx context.Context, rc RelationshipContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(buildPrompt(rc), genai.RoleUser),
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("llm: generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("llm: empty response")
	}
	return text, nil
}

// buildPrompt renders the enhanced relationship context into a narration prompt. Kept
// deliberately plain text rather than a templating library: one short paragraph, no
// conditionals worth a template engine.
func buildPrompt(rc RelationshipContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Describe in one short sentence why %q (in %s) relates to %q (in %s) as %q.\n",
		rc.FromName, rc.FromModule, rc.ToName, rc.ToModule, rc.ExistingType)
	if len(rc.PeersFrom) > 0 {
		fmt.Fprintf(&b, "%s also has %d other outgoing relationship(s).\n", rc.FromName, len(rc.PeersFrom))
	}
	if len(rc.PeersTo) > 0 {
		fmt.Fprintf(&b, "%s also has %d other incoming relationship(s).\n", rc.ToName, len(rc.PeersTo))
	}
	if len(rc.SharedTags) > 0 {
		fmt.Fprintf(&b, "They share domain context: %s.\n", strings.Join(rc.SharedTags, ", "))
	}
	b.WriteString("Reply with the sentence only, no preamble.")
	return b.String()
}
