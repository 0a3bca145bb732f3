package llmclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/llmclient"
)

func newTestClient(server *httptest.Server, apiKey string) *llmclient.HTTPClient {
	return llmclient.NewHTTPClient(llmclient.EndpointConfig{
		BaseURL:        server.URL,
		APIKeyHeader:   "X-API-Key",
		APIKey:         apiKey,
		RequestTimeout: 5 * time.Second,
	}, "test-model")
}

func TestHTTPClient_Generate_YieldedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": "I am done for this turn.",
			},
			"prompt_eval_count": 42,
			"eval_count":        17,
			"done_reason":       "stop",
		})
	}))
	defer server.Close()

	client := newTestClient(server, "")
	resp, err := client.Generate(context.Background(), &llmclient.GenerateInput{
		Messages: []llmclient.Message{{Role: llmclient.RoleUser, Content: "where am I?"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Yielded())
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 17, resp.OutputTokens)
}

func TestHTTPClient_Generate_ToolCallResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": "",
				"tool_calls": []map[string]any{
					{"function": map[string]any{"name": "move_east", "arguments": map[string]any{"experimentId": "abc"}}},
				},
			},
			"prompt_eval_count": 10,
			"eval_count":        5,
			"done_reason":       "tool_calls",
		})
	}))
	defer server.Close()

	client := newTestClient(server, "")
	resp, err := client.Generate(context.Background(), &llmclient.GenerateInput{
		Messages: []llmclient.Message{{Role: llmclient.RoleUser, Content: "go east"}},
		Tools:    []llmclient.ToolDefinition{{Name: "move_east", Description: "move east", ParametersSchema: `{"type":"object"}`}},
	})
	require.NoError(t, err)
	assert.False(t, resp.Yielded())
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "move_east", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"experimentId":"abc"}`, resp.ToolCalls[0].Arguments)
}

func TestHTTPClient_Generate_SendsAPIKeyHeader(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "ok"},
			"prompt_eval_count": 1,
			"eval_count":        1,
		})
	}))
	defer server.Close()

	client := newTestClient(server, "secret-key")
	_, err := client.Generate(context.Background(), &llmclient.GenerateInput{
		Messages: []llmclient.Message{{Role: llmclient.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "secret-key", gotKey)
}

func TestHTTPClient_Generate_RateLimitedClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	client := newTestClient(server, "")
	_, err := client.Generate(context.Background(), &llmclient.GenerateInput{
		Messages: []llmclient.Message{{Role: llmclient.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	var classified *apperrors.ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apperrors.KindRateLimited, classified.Kind)
}

func TestHTTPClient_Generate_TimeoutClassifiedAsTransportTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := llmclient.NewHTTPClient(llmclient.EndpointConfig{
		BaseURL:        server.URL,
		RequestTimeout: 10 * time.Millisecond,
	}, "test-model")

	_, err := client.Generate(context.Background(), &llmclient.GenerateInput{
		Messages: []llmclient.Message{{Role: llmclient.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	var classified *apperrors.ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apperrors.KindTransportTimeout, classified.Kind)
}
