// Package goparser is a reference implementation of the parser.Parser contract for Go
// source, built on tree-sitter. It exists to exercise the external parser boundary
// end-to-end; other languages can plug in any other conformant implementation.
package goparser

import (
	"context"
	"fmt"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"codeindex/internal/logging"
	"codeindex/internal/parser"
)

// Parser parses Go source files using tree-sitter's golang grammar.
type Parser struct {
	sitterParser *sitter.Parser
}

// New creates a Go parser. Callers must call Close when finished.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &Parser{sitterParser: p}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	p.sitterParser.Close()
}

func (p *Parser) SupportedExtensions() []string { return []string{".go"} }

func (p *Parser) Language() string { return "go" }

// ParseFile implements parser.Parser.
func (p *Parser) ParseFile(ctx context.Context, path string, content []byte, known []string, workspace parser.WorkspaceMap) (*parser.ParsedFile, error) {
	start := time.Now()
	// A tree-sitter parser carries per-parse state and the sync engine calls ParseFile
	// from several goroutines at once, so each call parses with its own instance.
	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(golang.GetLanguage())
	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	text := func(n *sitter.Node) string { return n.Content(content) }

	result := &parser.ParsedFile{
		Content:  content,
		Size:     int64(len(content)),
		MTime:    time.Now().Unix(),
		Language: "go",
	}

	var defs []parser.Definition
	var refs []parser.FileReference

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				defs = append(defs, parser.Definition{
					Name:     name,
					Kind:     "function",
					Exported: isExported(name),
					Start:    toPosition(n.StartPoint()),
					End:      toPosition(n.EndPoint()),
				})
			}
		case "method_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				defs = append(defs, parser.Definition{
					Name:     name,
					Kind:     "method",
					Exported: isExported(name),
					Start:    toPosition(n.StartPoint()),
					End:      toPosition(n.EndPoint()),
				})
			}
		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				typeNode := spec.ChildByFieldName("type")
				if nameNode == nil {
					continue
				}
				name := text(nameNode)
				kind := "type"
				var implements []string
				if typeNode != nil {
					switch typeNode.Type() {
					case "struct_type":
						kind = "class"
					case "interface_type":
						kind = "interface"
						implements = interfaceEmbeds(typeNode, text)
					}
				}
				defs = append(defs, parser.Definition{
					Name:       name,
					Kind:       kind,
					Exported:   isExported(name),
					Start:      toPosition(spec.StartPoint()),
					End:        toPosition(spec.EndPoint()),
					Implements: implements,
				})
			}
		case "var_declaration", "const_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "var_spec" && spec.Type() != "const_spec" {
					continue
				}
				for j := 0; j < int(spec.NamedChildCount()); j++ {
					child := spec.NamedChild(j)
					if child.Type() != "identifier" {
						continue
					}
					name := text(child)
					defs = append(defs, parser.Definition{
						Name:     name,
						Kind:     "variable",
						Exported: isExported(name),
						Start:    toPosition(spec.StartPoint()),
						End:      toPosition(spec.EndPoint()),
					})
				}
			}
		case "import_declaration":
			refs = append(refs, extractImports(n, text)...)
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	result.Definitions = defs
	result.References = refs

	logging.ParserWarn("parsed %s in %s: %d definitions, %d references", path, time.Since(start), len(defs), len(refs))
	return result, nil
}

func toPosition(p sitter.Point) parser.Position {
	return parser.Position{Row: int(p.Row), Column: int(p.Column)}
}

func isExported(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

func interfaceEmbeds(typeNode *sitter.Node, text func(*sitter.Node) string) []string {
	var embeds []string
	for i := 0; i < int(typeNode.NamedChildCount()); i++ {
		child := typeNode.NamedChild(i)
		if child.Type() == "type_identifier" || child.Type() == "qualified_type" {
			embeds = append(embeds, text(child))
		}
	}
	return embeds
}

func extractImports(n *sitter.Node, text func(*sitter.Node) string) []parser.FileReference {
	var refs []parser.FileReference
	for i := 0; i < int(n.NamedChildCount()); i++ {
		spec := n.NamedChild(i)
		if spec.Type() != "import_spec" {
			continue
		}
		pathNode := spec.ChildByFieldName("path")
		if pathNode == nil {
			continue
		}
		importPath := strings.Trim(text(pathNode), "\"")
		kind := "named"
		localName := ""
		if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
			alias := text(nameNode)
			localName = alias
			if alias == "_" {
				kind = "namespace"
			} else if alias == "." {
				kind = "namespace"
			}
		}
		refs = append(refs, parser.FileReference{
			Kind:     "import",
			Source:   importPath,
			External: !strings.Contains(importPath, "/") || !strings.HasPrefix(importPath, "codeindex"),
			Imports: []parser.ImportedSymbol{
				{Name: importPath, LocalName: localName, Kind: kind},
			},
		})
	}
	return refs
}
