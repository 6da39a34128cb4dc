package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updateArgs struct {
	ProductID int64  `json:"product_id" jsonschema:"minimum=1"`
	SEOTitle  string `json:"seo_title" jsonschema:"maxLength=70"`
}

func echoSpec(name string) Spec {
	return Spec{
		Name:        name,
		Description: "echoes its arguments",
		Arguments:   ArgumentsFor[updateArgs](),
		Invoke: func(ctx context.Context, args json.RawMessage) Result {
			var a updateArgs
			if err := Decode(name, args, &a); err != nil {
				return Failed(err)
			}
			return Structured(map[string]any{"id": a.ProductID, "title": a.SEOTitle})
		},
	}
}

func TestNewSetRejectsDuplicateNames(t *testing.T) {
	_, err := NewSet(echoSpec("update"), echoSpec("update"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewSetRejectsMissingImplementation(t *testing.T) {
	_, err := NewSet(Spec{Name: "noop"})
	require.Error(t, err)
}

func TestInvokeValidArguments(t *testing.T) {
	set, err := NewSet(echoSpec("update"))
	require.NoError(t, err)

	res := set.Invoke(context.Background(), "update", json.RawMessage(`{"product_id": 7, "seo_title": "Lamp"}`))
	require.Equal(t, KindStructured, res.Kind)
	assert.Contains(t, res.Render(), `"title": "Lamp"`)
}

func TestInvokeInvalidArguments(t *testing.T) {
	set, err := NewSet(echoSpec("update"))
	require.NoError(t, err)

	tests := []struct {
		name string
		args string
	}{
		{"missing field", `{"product_id": 7}`},
		{"wrong type", `{"product_id": "seven", "seo_title": "x"}`},
		{"too long", `{"product_id": 7, "seo_title": "` + strings.Repeat("a", 80) + `"}`},
		{"below minimum", `{"product_id": 0, "seo_title": "x"}`},
		{"not json", `{product_id`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := set.Invoke(context.Background(), "update", json.RawMessage(tt.args))
			require.Equal(t, KindError, res.Kind)
			assert.Equal(t, InvalidArguments, res.Err.Kind)
			assert.Equal(t, "update", res.Err.Tool)
		})
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	set, err := NewSet(echoSpec("update"))
	require.NoError(t, err)

	res := set.Invoke(context.Background(), "delete_everything", nil)
	require.Equal(t, KindError, res.Kind)
	assert.Equal(t, InvalidArguments, res.Err.Kind)
	assert.Contains(t, res.Render(), "available tools: update")
}

func TestInvokeRecoversPanics(t *testing.T) {
	set, err := NewSet(Spec{
		Name: "boom",
		Invoke: func(ctx context.Context, args json.RawMessage) Result {
			panic("kaboom")
		},
	})
	require.NoError(t, err)

	res := set.Invoke(context.Background(), "boom", nil)
	require.Equal(t, KindError, res.Kind)
	assert.Equal(t, ExecutionFailed, res.Err.Kind)
	assert.Contains(t, res.Err.Reason, "kaboom")
}

func TestInvokeCancelledContext(t *testing.T) {
	set, err := NewSet(Spec{
		Name: "slow",
		Invoke: func(ctx context.Context, args json.RawMessage) Result {
			return Text("should not run")
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := set.Invoke(ctx, "slow", nil)
	require.Equal(t, KindError, res.Kind)
	assert.True(t, errors.Is(res.Err, context.Canceled))
}

func TestExecutionFailureFillsToolName(t *testing.T) {
	set, err := NewSet(Spec{
		Name: "search",
		Invoke: func(ctx context.Context, args json.RawMessage) Result {
			return Failed(&Error{Kind: ExecutionFailed, Reason: "network unreachable"})
		},
	})
	require.NoError(t, err)

	res := set.Invoke(context.Background(), "search", json.RawMessage(`{}`))
	require.Equal(t, KindError, res.Kind)
	assert.Equal(t, "search", res.Err.Tool)
	assert.Equal(t, "error: tool search: execution_failed: network unreachable", res.Render())
}

func TestIsInvalidArguments(t *testing.T) {
	err := &Error{Kind: InvalidArguments, Tool: "x", Reason: "bad"}
	assert.True(t, IsInvalidArguments(err))
	assert.False(t, IsInvalidArguments(Execution("x", errors.New("down"))))
}
