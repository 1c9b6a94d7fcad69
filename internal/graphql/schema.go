// Package graphql exposes the feed over a single GraphQL endpoint.
package graphql

import (
	"context"
	_ "embed"
	"fmt"
	"runtime/debug"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"feedhub/internal/observability"
)

//go:embed schema.graphql
var schemaSDL string

const maxQueryDepth = 8

// panicLogger routes resolver panics to the structured logger.
type panicLogger struct{}

func (panicLogger) LogPanic(ctx context.Context, value interface{}) {
	observability.L().ErrorContext(ctx, "graphql resolver panic",
		"panic", fmt.Sprint(value),
		"stack", string(debug.Stack()),
	)
}

// NewSchema parses the schema and binds it to r.
func NewSchema(r *Resolver) (*graphqlgo.Schema, error) {
	return graphqlgo.ParseSchema(schemaSDL, r,
		graphqlgo.MaxDepth(maxQueryDepth),
		graphqlgo.Logger(panicLogger{}),
	)
}

// MustSchema is NewSchema that panics on a malformed schema.
func MustSchema(r *Resolver) *graphqlgo.Schema {
	s, err := NewSchema(r)
	if err != nil {
		panic(err)
	}
	return s
}
