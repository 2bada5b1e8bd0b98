package goparser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFileExtractsDefinitionsAndImports(t *testing.T) {
	src := []byte(`package sample

import (
	"fmt"
	"codeindex/internal/model"
)

type Widget struct {
	Name string
}

type Greeter interface {
	Greet() string
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}

func (w *Widget) Greet() string {
	return fmt.Sprintf("hi %s", w.Name)
}

var defaultWidget = &Widget{}
`)

	p := New()
	defer p.Close()

	result, err := p.ParseFile(context.Background(), "sample.go", src, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	names := map[string]string{}
	for _, d := range result.Definitions {
		names[d.Name] = d.Kind
	}

	require.Equal(t, "class", names["Widget"])
	require.Equal(t, "interface", names["Greeter"])
	require.Equal(t, "function", names["NewWidget"])
	require.Equal(t, "method", names["Greet"])
	require.Equal(t, "variable", names["defaultWidget"])

	require.NotEmpty(t, result.References)
	var sawModel bool
	for _, ref := range result.References {
		if ref.Source == "codeindex/internal/model" {
			sawModel = true
		}
	}
	require.True(t, sawModel)
}
