package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgi-ad-studio/internal/gemini"
)

type capturedRequest struct {
	path   string
	apiKey string
	body   map[string]any
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*gemini.Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := gemini.New(gemini.Options{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	return client, srv
}

func imageResponse(data string) string {
	return `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"` + data + `","mimeType":"image/png"}}]}}]}`
}

func textResponse(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}},
	})
	return string(body)
}

func capture(t *testing.T, r *http.Request) capturedRequest {
	t.Helper()

	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))

	return capturedRequest{
		path:   r.URL.Path,
		apiKey: r.Header.Get("x-goog-api-key"),
		body:   body,
	}
}

func TestPrepareImageReturnsInlineData(t *testing.T) {
	var got capturedRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = capture(t, r)
		io.WriteString(w, imageResponse("UFJFUEFSRUQ="))
	})

	result, err := client.PrepareImage(context.Background(), "c291cmNl", "image/jpeg")

	require.NoError(t, err)
	assert.Equal(t, "UFJFUEFSRUQ=", result)
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash-image:generateContent", got.path)
	assert.Equal(t, "test-key", got.apiKey)

	contents := got.body["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	inline := parts[0].(map[string]any)["inlineData"].(map[string]any)
	assert.Equal(t, "c291cmNl", inline["data"])
	assert.Equal(t, "image/jpeg", inline["mimeType"])
}

func TestPrepareImageNoImageInResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, textResponse("sorry, text only"))
	})

	_, err := client.PrepareImage(context.Background(), "c291cmNl", "image/png")

	assert.ErrorIs(t, err, gemini.ErrNoImage)
}

func TestGenerateAdSendsAspectRatio(t *testing.T) {
	var got capturedRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = capture(t, r)
		io.WriteString(w, imageResponse("QUQ="))
	})

	result, err := client.GenerateAd(context.Background(), "c291cmNl", "image/png", "a marble podium", "9:16")

	require.NoError(t, err)
	assert.Equal(t, "QUQ=", result)

	cfg := got.body["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"IMAGE"}, cfg["responseModalities"])
	imgCfg := cfg["imageConfig"].(map[string]any)
	assert.Equal(t, "9:16", imgCfg["aspectRatio"])
}

func TestGenerateAdRetriesWithoutImageConfig(t *testing.T) {
	var calls []capturedRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, capture(t, r))
		if len(calls) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"message":"Invalid JSON payload received. Unknown name \"imageConfig\""}}`)
			return
		}
		io.WriteString(w, imageResponse("QUQ="))
	})

	result, err := client.GenerateAd(context.Background(), "c291cmNl", "image/png", "a scene", "16:9")

	require.NoError(t, err)
	assert.Equal(t, "QUQ=", result)
	require.Len(t, calls, 2)

	firstCfg := calls[0].body["generationConfig"].(map[string]any)
	assert.Contains(t, firstCfg, "imageConfig")
	secondCfg := calls[1].body["generationConfig"].(map[string]any)
	assert.NotContains(t, secondCfg, "imageConfig")
}

func TestGenerateVideoPromptTrimsText(t *testing.T) {
	var got capturedRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = capture(t, r)
		io.WriteString(w, textResponse("  A slow dolly zoom toward the bottle.  \n"))
	})

	result, err := client.GenerateVideoPrompt(context.Background(), "ZmluYWw=", "image/jpeg", "a marble podium")

	require.NoError(t, err)
	assert.Equal(t, "A slow dolly zoom toward the bottle.", result)
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", got.path)
}

func TestGenerateRandomSceneEmptyResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, textResponse("   "))
	})

	_, err := client.GenerateRandomScene(context.Background(), "c291cmNl", "image/png")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestGenerateContentHTTPErrorSurfacesBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"quota exceeded"}}`)
	})

	_, err := client.PrepareImage(context.Background(), "c291cmNl", "image/png")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
