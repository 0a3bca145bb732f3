package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/config"
)

func TestParseEnvelope_ValidManagedAgentEnvelope(t *testing.T) {
	raw := []byte(`{"llm_provider":"managed-agent","model_name":"claude","maze_id":1,"prompt_version":"v1"}`)
	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderManagedAgent, env.LLMProvider)
	assert.Equal(t, "claude", env.ModelName)
	assert.EqualValues(t, 1, env.MazeID)
}

func TestParseEnvelope_ValidLocalChatWithInlineConfig(t *testing.T) {
	raw := []byte(`{"llm_provider":"local-chat","model_name":"llama3","maze_id":2,
		"prompt_version":"v2","config":{"num_ctx":4096,"max_actions_per_turn":6}}`)
	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	require.NotNil(t, env.Config)
	require.NotNil(t, env.Config.NumCtx)
	assert.Equal(t, 4096, *env.Config.NumCtx)
}

func TestParseEnvelope_MalformedJSONFailsConfigMissing(t *testing.T) {
	_, err := ParseEnvelope([]byte(`not json`))
	var classified *apperrors.ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apperrors.KindConfigMissing, classified.Kind)
}

func TestParseEnvelope_UnknownProviderFails(t *testing.T) {
	raw := []byte(`{"llm_provider":"carrier-pigeon","model_name":"x","maze_id":1,"prompt_version":"v1"}`)
	_, err := ParseEnvelope(raw)
	var classified *apperrors.ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apperrors.KindConfigMissing, classified.Kind)
}

func TestParseEnvelope_MissingRequiredFieldFails(t *testing.T) {
	raw := []byte(`{"llm_provider":"managed-agent","maze_id":1,"prompt_version":"v1"}`)
	_, err := ParseEnvelope(raw)
	require.Error(t, err)
}

func TestDedupToken_StableForIdenticalBytesDiffersOtherwise(t *testing.T) {
	a := DedupToken([]byte(`{"model_name":"x"}`))
	b := DedupToken([]byte(`{"model_name":"x"}`))
	c := DedupToken([]byte(`{"model_name":"y"}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
