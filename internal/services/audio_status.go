package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/fastingles-audio/internal/domain"
	"github.com/yungbote/fastingles-audio/internal/modules/audio/keys"
	"github.com/yungbote/fastingles-audio/internal/observability"
	"github.com/yungbote/fastingles-audio/internal/platform/dbctx"
)

// dictionaryProvider is recorded for dictionary objects adopted by Speak
// without knowing which synthesizer produced them.
const dictionaryProvider = "gtts"

// CheckStatus reports whether identity has playable audio. It never mutates
// state: a record whose object is gone is reported as Stale and left for the
// next EnsureAudio to heal.
func (s *audioCacheService) CheckStatus(ctx context.Context, identity string) (*AudioStatus, error) {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if !keys.IsIdentity(identity) {
		return nil, invalidArg("malformed content identity %q", identity)
	}
	ctx, span := observability.Tracer().Start(ctx, "audio.CheckStatus")
	defer span.End()

	dbc := dbctx.Context{Ctx: ctx}
	rec, err := s.repo.FindByIdentity(dbc, identity)
	if err != nil {
		return nil, &AudioError{Stage: StageLookup, Err: err}
	}
	st := &AudioStatus{Identity: identity}
	if rec == nil {
		return st, nil
	}
	st.StorageKey = rec.StorageKey
	st.Language = rec.Language
	st.Provider = rec.Provider
	st.AccessCount = rec.AccessCount

	ok, err := s.store.Exists(ctx, rec.StorageKey)
	if err != nil {
		return nil, &AudioError{Stage: StageVerify, Text: rec.RawText, Language: rec.Language, Err: err}
	}
	if !ok {
		st.Stale = true
		span.SetAttributes(attribute.Bool("audio.stale", true))
		return st, nil
	}
	u, err := s.store.PresignedURL(ctx, rec.StorageKey, s.cfg.URLTTL)
	if err != nil {
		return nil, &AudioError{Stage: StagePresign, Text: rec.RawText, Language: rec.Language, Err: err}
	}
	st.Exists = true
	st.URL = u
	return st, nil
}

// Speak returns something the client can play: stored audio when available,
// otherwise freshly generated audio, or for the browser provider a marker
// telling the client to use its own speech engine.
func (s *audioCacheService) Speak(ctx context.Context, req SpeakRequest) (*SpeakResult, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider != ProviderBrowser {
		res, err := s.EnsureAudio(ctx, EnsureAudioRequest{
			Text:     req.Text,
			Language: req.Language,
			Kind:     keys.KindWord,
			Provider: provider,
			WithURL:  true,
		})
		if err != nil {
			return nil, err
		}
		return &SpeakResult{Identity: res.Identity, URL: res.URL, Cached: res.Cached, Provider: res.Provider}, nil
	}

	ereq, identity, err := normalizeEnsure(EnsureAudioRequest{Text: req.Text, Language: req.Language, Kind: keys.KindWord})
	if err != nil {
		return nil, err
	}
	ctx, span := observability.Tracer().Start(ctx, "audio.Speak")
	defer span.End()
	dbc := dbctx.Context{Ctx: ctx}

	hit, err := s.serveFromCache(dbc, ereq, identity, true)
	if err != nil {
		return nil, err
	}
	if hit != nil {
		return s.speakResult(ctx, ereq, identity, hit.StorageKey, hit.Provider)
	}

	if key, ok := keys.DeriveGlobalKey(ereq.Text, ereq.Language); ok {
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return nil, audioErr(StageVerify, ereq, err)
		}
		if exists {
			s.log.Info("Found dictionary audio for browser request", "identity", identity, "storage_key", key)
			rec := &types.AudioCache{
				ContentIdentity: identity,
				RawText:         ereq.Text,
				Language:        ereq.Language,
				Provider:        dictionaryProvider,
				StorageKey:      key,
			}
			if err := s.repo.Insert(dbc, rec); err != nil {
				s.log.Debug("Opportunistic cache insert skipped", "identity", identity, "error", err)
			}
			return s.speakResult(ctx, ereq, identity, key, dictionaryProvider)
		}
	}

	s.log.Info("No stored audio, falling back to browser speech", "identity", identity, "text", ereq.Text)
	return &SpeakResult{
		Identity: identity,
		URL:      BrowserSpeechMarker(ereq.Text, ereq.Language),
		Cached:   false,
		Provider: ProviderBrowser,
	}, nil
}

func (s *audioCacheService) speakResult(ctx context.Context, req EnsureAudioRequest, identity, key, provider string) (*SpeakResult, error) {
	u, err := s.store.PresignedURL(ctx, key, s.cfg.URLTTL)
	if err != nil {
		return nil, audioErr(StagePresign, req, err)
	}
	return &SpeakResult{Identity: identity, URL: u, Cached: true, Provider: provider}, nil
}

// BrowserSpeechMarker is the URL placeholder that tells a client to speak
// text with its local engine.
func BrowserSpeechMarker(text, language string) string {
	return "BROWSER_TTS::" + text + "::" + language
}
