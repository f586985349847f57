package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/fastingles-audio/internal/platform/httpx"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

func newTestClient(t *testing.T, url string, retries int) *SpeechClient {
	t.Helper()
	c, err := NewSpeechClient(logger.Nop(), SpeechConfig{
		APIKey:     "sk-test",
		BaseURL:    url,
		Model:      "gpt-4o-mini-tts",
		Voice:      "alloy",
		Format:     "mp3",
		MaxRetries: retries,
	})
	require.NoError(t, err)
	c.backoff = time.Millisecond
	return c
}

func TestSynthesizeSendsSpeechRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "I run fast.", body.Input)
		assert.Equal(t, "alloy", body.Voice)
		assert.Equal(t, "mp3", body.ResponseFormat)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	out, err := c.Synthesize(t.Context(), "I run fast.", "en-US")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), out)
	assert.Equal(t, ProviderName, c.Name())
}

func TestSynthesizeRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down"}`))
			return
		}
		_, _ = w.Write([]byte("ID3ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	out, err := c.Synthesize(t.Context(), "hello", "en")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3ok"), out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSynthesizeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad voice"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Synthesize(t.Context(), "hello", "en")
	require.Error(t, err)
	var se *httpx.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewSpeechClientRequiresKey(t *testing.T) {
	_, err := NewSpeechClient(logger.Nop(), SpeechConfig{})
	require.Error(t, err)
}
