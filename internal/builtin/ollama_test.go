package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tberrors "toolbridge/pkg/errors"
)

func TestOllamaChat(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":             "llama3.2",
			"message":           map[string]string{"role": "assistant", "content": "hello there"},
			"prompt_eval_count": 12,
			"eval_count":        34,
		})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(srv.URL, nil)
	require.NoError(t, err)

	payload, err := c.Chat(context.Background(), map[string]interface{}{
		"model":  "llama3.2",
		"prompt": "say hello",
		"system": "be brief",
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", payload.Text)

	structured := payload.Structured.(map[string]interface{})
	assert.Equal(t, 12, structured["input_tokens"])
	assert.Equal(t, 34, structured["output_tokens"])

	// System message precedes the user message.
	messages := gotBody["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, false, gotBody["stream"])
}

func TestOllamaChatMissingArguments(t *testing.T) {
	c, err := NewOllamaClient("http://localhost:1", nil)
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), map[string]interface{}{"model": "llama3.2"})
	require.Error(t, err)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeValidation, tbErr.Type)
}

func TestOllamaListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]interface{}{
				{"name": "llama3.2", "size": 2019393189},
				{"name": "qwen2.5-coder", "size": 4683087332},
			},
		})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(srv.URL, nil)
	require.NoError(t, err)

	payload, err := c.ListModels(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "llama3.2\nqwen2.5-coder", payload.Text)
}

func TestOllamaShowModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/show", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "llama3.2", body["name"])
		json.NewEncoder(w).Encode(map[string]interface{}{
			"parameters": "stop <|eot_id|>",
			"details":    map[string]interface{}{"family": "llama"},
		})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(srv.URL, nil)
	require.NoError(t, err)

	payload, err := c.ShowModel(context.Background(), map[string]interface{}{"model": "llama3.2"})
	require.NoError(t, err)

	details := payload.Structured.(map[string]interface{})
	assert.Contains(t, details, "parameters")
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewOllamaClient(srv.URL, nil)
	require.NoError(t, err)

	_, err = c.ListModels(context.Background(), nil)
	require.Error(t, err)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeServer, tbErr.Type)
	assert.True(t, tberrors.Classify(err))
}

func TestOllamaConnectionRefused(t *testing.T) {
	c, err := NewOllamaClient("http://127.0.0.1:1", nil)
	require.NoError(t, err)

	_, err = c.ListModels(context.Background(), nil)
	require.Error(t, err)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeConnection, tbErr.Type)
}
