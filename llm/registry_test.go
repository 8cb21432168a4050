package llm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agora/llm"
)

func TestParseFamily(t *testing.T) {
	tests := []struct {
		in      string
		want    llm.Family
		wantErr bool
	}{
		{"openai", llm.FamilyOpenAI, false},
		{"Anthropic", llm.FamilyAnthropic, false},
		{"openrouter", llm.FamilyOpenRouter, false},
		{"gemini", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := llm.ParseFamily(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModelRegistry_Resolve(t *testing.T) {
	reg, err := llm.NewModelRegistry("gpt-4o-mini", nil)
	require.NoError(t, err)

	f, err := reg.Resolve("meta-llama/llama-3.1-70b-instruct")
	require.NoError(t, err)
	assert.Equal(t, llm.FamilyOpenRouter, f)

	_, err = reg.Resolve("gpt-2")
	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrUnknownModel, llmErr.Code)
	assert.Equal(t, 400, llmErr.HTTPStatus)
}

func TestModelRegistry_ExtraModels(t *testing.T) {
	reg, err := llm.NewModelRegistry("my-local-model", map[string]string{
		"my-local-model": "openrouter",
	})
	require.NoError(t, err)

	assert.True(t, reg.Known("my-local-model"))
	assert.Equal(t, "my-local-model", reg.DefaultModel())

	_, err = llm.NewModelRegistry("gpt-4o", map[string]string{"x": "bogus"})
	assert.Error(t, err)
}

func TestModelRegistry_DefaultMustExist(t *testing.T) {
	_, err := llm.NewModelRegistry("does-not-exist", nil)
	assert.Error(t, err)
}

func TestModelRegistry_ResolveOrDefault(t *testing.T) {
	reg, err := llm.NewModelRegistry("gpt-4o-mini", nil)
	require.NoError(t, err)

	model, f := reg.ResolveOrDefault("unknown")
	assert.Equal(t, "gpt-4o-mini", model)
	assert.Equal(t, llm.FamilyOpenAI, f)

	model, f = reg.ResolveOrDefault("claude-3-5-haiku-latest")
	assert.Equal(t, "claude-3-5-haiku-latest", model)
	assert.Equal(t, llm.FamilyAnthropic, f)
}

func TestModelRegistry_ModelsSorted(t *testing.T) {
	reg, err := llm.NewModelRegistry("gpt-4o-mini", nil)
	require.NoError(t, err)

	models := reg.Models()
	require.NotEmpty(t, models)
	for i := 1; i < len(models); i++ {
		assert.Less(t, models[i-1].ID, models[i].ID)
	}
}
