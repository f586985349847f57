package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/fastingles-audio/internal/data/repos/testutil"
	"github.com/yungbote/fastingles-audio/internal/modules/audio/keys"
)

func TestCheckStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CheckStatus(ctx, "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	unknown, err := h.svc.CheckStatus(ctx, keys.Hash("never", "en-US"))
	require.NoError(t, err)
	assert.False(t, unknown.Exists)
	assert.False(t, unknown.Stale)
	assert.Empty(t, unknown.URL)

	res, err := h.svc.EnsureAudio(ctx, EnsureAudioRequest{Text: "run", Language: "en-US"})
	require.NoError(t, err)
	_, err = h.svc.EnsureAudio(ctx, EnsureAudioRequest{Text: "run", Language: "en-US"})
	require.NoError(t, err)
	require.NoError(t, h.svc.Drain(ctx))

	st, err := h.svc.CheckStatus(ctx, res.Identity)
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.Equal(t, "en-US", st.Language)
	assert.Equal(t, "gtts", st.Provider)
	assert.Equal(t, int64(1), st.AccessCount)
	assert.Equal(t, "https://signed.test/global/dictionary/r/run.mp3", st.URL)
}

func TestCheckStatusDoesNotHeal(t *testing.T) {
	h := newHarness(t)
	identity := keys.Hash("gone", "en-US")
	testutil.SeedAudioCache(t, h.db, identity, "global/dictionary/g/gone.mp3")

	st, err := h.svc.CheckStatus(context.Background(), identity)
	require.NoError(t, err)
	assert.False(t, st.Exists)
	assert.True(t, st.Stale)
	assert.NotNil(t, h.record(t, identity), "status checks must not delete rows")
}

func TestSpeakBrowserFallsBackToMarker(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Speak(context.Background(), SpeakRequest{Text: "hello", Language: "en-US", Provider: "browser"})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, ProviderBrowser, res.Provider)
	assert.Equal(t, "BROWSER_TTS::hello::en-US", res.URL)
	assert.Equal(t, int32(0), h.synth.calls.Load())
	assert.Nil(t, h.record(t, res.Identity))
}

func TestSpeakBrowserAdoptsDictionaryObject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.seed("global/dictionary/h/hello.mp3")

	res, err := h.svc.Speak(ctx, SpeakRequest{Text: "Hello", Language: "es", Provider: "browser"})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, "gtts", res.Provider)
	assert.Equal(t, "https://signed.test/global/dictionary/h/hello.mp3", res.URL)

	rec := h.record(t, keys.Hash("Hello", "es"))
	require.NotNil(t, rec)
	assert.Nil(t, rec.ByteSize)

	again, err := h.svc.Speak(ctx, SpeakRequest{Text: "Hello", Language: "es", Provider: "browser"})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, int64(1), h.record(t, res.Identity).AccessCount)
}

func TestSpeakBrowserIgnoresMultiWordDictionaryProbe(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Speak(context.Background(), SpeakRequest{Text: "good morning", Language: "en-US", Provider: "browser"})
	require.NoError(t, err)
	assert.Equal(t, "BROWSER_TTS::good morning::en-US", res.URL)
}

func TestSpeakWithSynthesizerGeneratesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Speak(ctx, SpeakRequest{Text: "run", Language: "en-US"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "https://signed.test/global/dictionary/r/run.mp3", first.URL)

	second, err := h.svc.Speak(ctx, SpeakRequest{Text: "run", Language: "en-US", Provider: "gtts"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), h.synth.calls.Load())
}

func TestSpeakRejectsEmptyText(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Speak(context.Background(), SpeakRequest{Text: " ", Provider: "browser"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
