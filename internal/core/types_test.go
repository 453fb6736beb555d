package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringOrListUnmarshal(t *testing.T) {
	t.Run("single string", func(t *testing.T) {
		var s StringOrList
		require.NoError(t, json.Unmarshal([]byte(`"stop here"`), &s))
		assert.Equal(t, StringOrList{"stop here"}, s)
	})

	t.Run("list", func(t *testing.T) {
		var s StringOrList
		require.NoError(t, json.Unmarshal([]byte(`["a", "b"]`), &s))
		assert.Equal(t, StringOrList{"a", "b"}, s)
	})

	t.Run("invalid", func(t *testing.T) {
		var s StringOrList
		assert.Error(t, json.Unmarshal([]byte(`42`), &s))
	})
}

func TestStringOrListMarshal(t *testing.T) {
	single, err := json.Marshal(StringOrList{"hello"})
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(single))

	list, err := json.Marshal(StringOrList{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, `["hello","world"]`, string(list))
}

func TestEmbeddingRequestAcceptsBothInputForms(t *testing.T) {
	var req EmbeddingRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"embed-1","input":"single"}`), &req))
	assert.Len(t, req.Input, 1)

	require.NoError(t, json.Unmarshal([]byte(`{"model":"embed-1","input":["hello","world"]}`), &req))
	assert.Len(t, req.Input, 2)
}

func TestWithStreamingDoesNotMutate(t *testing.T) {
	req := &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}}
	streamed := req.WithStreaming()

	assert.True(t, streamed.Stream)
	assert.False(t, req.Stream)
	assert.Equal(t, req.Model, streamed.Model)
}
