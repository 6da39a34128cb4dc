package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/storecrew/internal/agent"
	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/llm"
	"github.com/mtzanidakis/storecrew/internal/schema"
	"github.com/mtzanidakis/storecrew/internal/tool"
)

func TestRender(t *testing.T) {
	load := &Task{ID: "load_products_task"}
	task := &Task{
		ID:          "seo",
		Description: `Optimise {product_type} for {target_audience}. Products: {load_products_task.output}. Keep JSON like {"a": 1}.`,
		Context:     []*Task{load},
	}

	out, err := Render(task,
		map[string]string{"product_type": "lamps", "target_audience": "makers"},
		map[string]string{"load_products_task": "[lamp]"},
	)
	require.NoError(t, err)
	assert.Equal(t, `Optimise lamps for makers. Products: [lamp]. Keep JSON like {"a": 1}.`, out)
}

func TestRenderUnresolved(t *testing.T) {
	other := &Task{ID: "other"}
	tests := []struct {
		name string
		desc string
		want string
	}{
		{"missing input", "Voice: {brand_voice}", "brand_voice"},
		{"non-context task", "Use {other.output}", "other.output"},
		{"first wins", "{a} and {b}", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(&Task{ID: "t", Description: tt.desc}, nil, map[string]string{other.ID: "x"})
			var te *TemplateError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.want, te.Placeholder)
			assert.Equal(t, KindTemplate, Classify(err))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{a} {b.output} {a} {not valid}")
	assert.Equal(t, []string{"a", "b.output"}, got)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      ErrorKind
		transient bool
	}{
		{"nil", nil, KindNone, false},
		{"cancelled", context.Canceled, KindCancelled, false},
		{"dependency", &DependencyError{Task: "a", Dependency: "b"}, KindInvalidDependencyOrder, false},
		{"configuration", &config.ConfigurationError{Section: "storefront"}, KindConfiguration, false},
		{"template", &TemplateError{Task: "a", Placeholder: "x"}, KindTemplate, false},
		{"schema", &schema.ValidationError{Schema: "Copy", Field: "body"}, KindSchemaValidation, false},
		{"invalid args", &tool.Error{Kind: tool.InvalidArguments}, KindInvalidArguments, false},
		{"tool execution", &tool.Error{Kind: tool.ExecutionFailed}, KindToolExecution, true},
		{"backends", &llm.ChainError{}, KindAllBackendsFailed, true},
		{"iteration limit", &agent.IterationError{Agent: "a", Limit: 3}, KindIterationLimit, true},
		{"other", errors.New("weird"), KindAgent, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := Classify(tt.err)
			assert.Equal(t, tt.want, k)
			assert.Equal(t, tt.transient, k.Transient())
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := PolicyFromConfig(config.PipelineConfig{MaxAttempts: 2, SelfCorrect: true})
	require.NoError(t, err)
	assert.Equal(t, ScopeAttempt, p.FallbackScope)
	assert.Equal(t, DefaultMaxCorrections, p.MaxCorrections)

	p, err = PolicyFromConfig(config.PipelineConfig{MaxAttempts: 3, SelfCorrect: true, MaxCorrections: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, p.MaxCorrections)

	_, err = PolicyFromConfig(config.PipelineConfig{MaxAttempts: 3, MaxCorrections: -1})
	require.Error(t, err)

	_, err = PolicyFromConfig(config.PipelineConfig{MaxAttempts: 0})
	require.Error(t, err)

	_, err = PolicyFromConfig(config.PipelineConfig{MaxAttempts: 1, FallbackScope: "forever"})
	require.Error(t, err)
}

func TestInterpolateIsSinglePass(t *testing.T) {
	out, missing := Interpolate("Sell {product} in {voice} voice", map[string]string{
		"product": "a {voice} lamp",
		"voice":   "playful",
	})
	assert.Empty(t, missing)
	assert.Equal(t, "Sell a {voice} lamp in playful voice", out)

	_, missing = Interpolate("{a} and {b}", map[string]string{"a": "x"})
	assert.Equal(t, "b", missing)
}
