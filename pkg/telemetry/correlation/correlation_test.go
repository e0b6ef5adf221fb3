package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureKeepsExisting(t *testing.T) {
	ctx := WithID(context.Background(), "run-1")
	ctx, id := Ensure(ctx)
	assert.Equal(t, "run-1", id)
	assert.Equal(t, "run-1", ID(ctx))
}

func TestEnsureGenerates(t *testing.T) {
	ctx, id := Ensure(context.Background())
	require.Len(t, id, 26)
	assert.Equal(t, id, ID(ctx))
}

func TestFromHeader(t *testing.T) {
	assert.Equal(t, "req-42.a:b_c", FromHeader(" req-42.a:b_c "))

	for _, bad := range []string{"", "has space", "new\nline", strings.Repeat("x", 65)} {
		got := FromHeader(bad)
		assert.Len(t, got, 26, "%q", bad)
		assert.NotEqual(t, bad, got)
	}
}
