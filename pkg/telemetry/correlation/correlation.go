// Package correlation carries the id that ties together every log line of
// one HTTP request or one scheduler run.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

const maxIDLength = 64

type idKey struct{}

// ID returns the correlation id on ctx, or "".
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(idKey{}).(string)
	return id
}

func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, idKey{}, id)
}

// Ensure returns ctx carrying an id, minting a ULID when none is set.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return WithID(ctx, id), id
}

// FromHeader accepts a caller supplied request id when it is short and made of
// safe characters, and mints a new one otherwise.
func FromHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxIDLength || strings.IndexFunc(value, unsafeRune) >= 0 {
		return ulid.Make().String()
	}
	return value
}

func unsafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '-' || r == '_' || r == '.' || r == ':':
		return false
	}
	return true
}
