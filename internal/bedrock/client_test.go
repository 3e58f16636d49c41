package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tberrors "toolbridge/pkg/errors"
)

const testModelID = "anthropic.claude-haiku-4-5-20251001-v1:0"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func anthropicReply(text string, in, out int) []byte {
	raw, _ := json.Marshal(map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": text}},
		"usage":   map[string]int{"input_tokens": in, "output_tokens": out},
	})
	return raw
}

func TestChatViaRuntimeEndpoint(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Write(anthropicReply("endpoint reply", 10, 20))
	}))
	defer srv.Close()

	tokens := func(ctx context.Context) (string, time.Time, error) {
		return "runtime-token", time.Now().Add(time.Hour), nil
	}

	c, err := New(context.Background(), Config{RuntimeEndpoint: srv.URL}, tokens, nil)
	require.NoError(t, err)

	payload, err := c.Chat(context.Background(), map[string]interface{}{"prompt": "hello"})
	require.NoError(t, err)

	assert.Equal(t, "endpoint reply", payload.Text)
	assert.Equal(t, "Bearer runtime-token", gotAuth)
	assert.Equal(t, "/model/"+testModelID+"/invoke", gotPath)

	structured := payload.Structured.(map[string]interface{})
	assert.Equal(t, 10, structured["input_tokens"])
	assert.Equal(t, 20, structured["output_tokens"])
	assert.Equal(t, false, structured["usage_estimated"])
}

func TestChatEndpointServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tokens := func(ctx context.Context) (string, time.Time, error) {
		return "runtime-token", time.Now().Add(time.Hour), nil
	}

	c, err := New(context.Background(), Config{RuntimeEndpoint: srv.URL}, tokens, nil)
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), map[string]interface{}{"prompt": "hello"})
	require.Error(t, err)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeRateLimit, tbErr.Type)
	assert.True(t, tberrors.Classify(err))
}

func TestChatEndpointErrorOmitsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "account 123456789 exceeded its quota", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tokens := func(ctx context.Context) (string, time.Time, error) {
		return "runtime-token", time.Now().Add(time.Hour), nil
	}

	c, err := New(context.Background(), Config{RuntimeEndpoint: srv.URL}, tokens, newTestLogger())
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), map[string]interface{}{"prompt": "hello"})
	require.Error(t, err)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeServer, tbErr.Type)
	assert.NotContains(t, err.Error(), "account")
	assert.Contains(t, err.Error(), http.StatusText(http.StatusInternalServerError))
}

func TestNewEndpointRequiresTokenSource(t *testing.T) {
	_, err := New(context.Background(), Config{RuntimeEndpoint: "https://runtime.example.com"}, nil, nil)
	require.Error(t, err)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeConfig, tbErr.Type)
}

// fakeSDK records the invoke input and returns a canned response.
type fakeSDK struct {
	in  *bedrockruntime.InvokeModelInput
	out *bedrockruntime.InvokeModelOutput
	err error
}

func (f *fakeSDK) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = params
	return f.out, f.err
}

func newSDKClient(sdk sdkInvoker) *Client {
	return &Client{
		cfg: Config{
			ModelID:     testModelID,
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
		},
		sdk:    sdk,
		logger: newTestLogger(),
	}
}

func TestChatViaSDK(t *testing.T) {
	sdk := &fakeSDK{out: &bedrockruntime.InvokeModelOutput{Body: anthropicReply("sdk reply", 3, 4)}}
	c := newSDKClient(sdk)

	payload, err := c.Chat(context.Background(), map[string]interface{}{
		"prompt":     "hello",
		"max_tokens": float64(512),
	})
	require.NoError(t, err)

	assert.Equal(t, "sdk reply", payload.Text)
	require.NotNil(t, sdk.in)
	assert.Equal(t, testModelID, *sdk.in.ModelId)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(sdk.in.Body, &body))
	assert.Equal(t, float64(512), body["max_tokens"])
}

func TestChatThinkingBudget(t *testing.T) {
	sdk := &fakeSDK{out: &bedrockruntime.InvokeModelOutput{Body: anthropicReply("sdk reply", 3, 4)}}
	c := newSDKClient(sdk)

	_, err := c.Chat(context.Background(), map[string]interface{}{
		"prompt":          "hello",
		"thinking_budget": float64(1024),
	})
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(sdk.in.Body, &body))
	thinking := body["thinking"].(map[string]interface{})
	assert.Equal(t, "enabled", thinking["type"])
	assert.Equal(t, float64(1024), thinking["budget_tokens"])
}

func TestChatThinkingBudgetIgnoredForOtherVendors(t *testing.T) {
	reply, _ := json.Marshal(map[string]interface{}{"generation": "llama reply"})
	sdk := &fakeSDK{out: &bedrockruntime.InvokeModelOutput{Body: reply}}
	c := newSDKClient(sdk)

	_, err := c.Chat(context.Background(), map[string]interface{}{
		"prompt":          "hello",
		"model":           "us.meta.llama3-70b-instruct-v1:0",
		"thinking_budget": float64(1024),
	})
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(sdk.in.Body, &body))
	assert.NotContains(t, body, "thinking")
}

func TestChatEstimateCoversSystemPrompt(t *testing.T) {
	reply, _ := json.Marshal(map[string]string{"text": "ok!!"})
	sdk := &fakeSDK{out: &bedrockruntime.InvokeModelOutput{Body: reply}}
	c := newSDKClient(sdk)

	// cohere reports no token counts, so estimation engages over the
	// joined system and user text: len("be terse\n\nhello world!")/4.
	payload, err := c.Chat(context.Background(), map[string]interface{}{
		"prompt": "hello world!",
		"system": "be terse",
		"model":  "cohere.command-r-v1:0",
	})
	require.NoError(t, err)

	structured := payload.Structured.(map[string]interface{})
	assert.Equal(t, 5, structured["input_tokens"])
	assert.Equal(t, 1, structured["output_tokens"])
	assert.Equal(t, true, structured["usage_estimated"])
}

func TestChatSDKFailureIsConnectionError(t *testing.T) {
	sdk := &fakeSDK{err: errors.New("dial tcp: connection refused")}
	c := newSDKClient(sdk)

	_, err := c.Chat(context.Background(), map[string]interface{}{"prompt": "hello"})
	require.Error(t, err)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeConnection, tbErr.Type)
}

func TestChatMissingPrompt(t *testing.T) {
	c := newSDKClient(&fakeSDK{})

	_, err := c.Chat(context.Background(), map[string]interface{}{})
	require.Error(t, err)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeValidation, tbErr.Type)
}

func TestChatModelOverride(t *testing.T) {
	reply, _ := json.Marshal(map[string]interface{}{
		"generation":             "llama reply",
		"prompt_token_count":     1,
		"generation_token_count": 2,
	})
	sdk := &fakeSDK{out: &bedrockruntime.InvokeModelOutput{Body: reply}}
	c := newSDKClient(sdk)

	payload, err := c.Chat(context.Background(), map[string]interface{}{
		"prompt": "hello",
		"model":  "us.meta.llama3-70b-instruct-v1:0",
	})
	require.NoError(t, err)

	assert.Equal(t, "llama reply", payload.Text)
	assert.Equal(t, "us.meta.llama3-70b-instruct-v1:0", *sdk.in.ModelId)
}
