package capability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(KindUpstream5xx, "search.query", errors.New("status 502"))
	assert.Equal(t, "search.query: upstream_5xx: status 502", err.Error())

	bare := &Error{Kind: KindTimeout, Op: "llm.ask"}
	assert.Equal(t, "llm.ask: timeout", bare.Error())
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewError(KindTransport, "chart.render", inner)

	assert.True(t, errors.Is(err, inner))

	wrapped := fmt.Errorf("tool failed: %w", err)
	var ce *Error
	require.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, KindTransport, ce.Kind)
	assert.Equal(t, "chart.render", ce.Op)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{
			name:     "direct capability error",
			err:      NewError(KindParse, "llm.ask", errors.New("bad json")),
			expected: KindParse,
		},
		{
			name:     "wrapped capability error",
			err:      fmt.Errorf("call 3: %w", NewError(KindUpstream4xx, "search.query", errors.New("401"))),
			expected: KindUpstream4xx,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: "",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(NewError(KindTimeout, "llm.ask", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(NewError(KindTransport, "llm.ask", errors.New("refused"))))
	assert.False(t, IsTimeout(errors.New("plain")))
}

func TestFromContext(t *testing.T) {
	t.Run("deadline becomes timeout kind", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		<-ctx.Done()

		err := FromContext("llm.ask", ctx, ctx.Err())
		assert.Equal(t, KindTimeout, KindOf(err))
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := FromContext("llm.ask", ctx, ctx.Err())
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, Kind(""), KindOf(err))
	})

	t.Run("other errors become transport kind", func(t *testing.T) {
		err := FromContext("search.query", context.Background(), errors.New("eof"))
		assert.Equal(t, KindTransport, KindOf(err))
	})
}
