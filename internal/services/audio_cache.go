package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/fastingles-audio/internal/data/repos"
	types "github.com/yungbote/fastingles-audio/internal/domain"
	"github.com/yungbote/fastingles-audio/internal/modules/audio/keys"
	"github.com/yungbote/fastingles-audio/internal/observability"
	"github.com/yungbote/fastingles-audio/internal/platform/dbctx"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

const (
	DefaultLanguage = "en-US"
	audioMIME       = "audio/mpeg"
)

type EnsureAudioRequest struct {
	Text     string
	Language string
	Category string
	Level    int
	Kind     keys.Kind
	// Provider selects the synthesizer; empty means the configured default.
	Provider string
	// WithURL asks for a presigned download URL in the result.
	WithURL bool
}

type EnsureAudioResult struct {
	Identity   string
	StorageKey string
	URL        string
	Provider   string
	// Cached is true when no synthesis happened for this call.
	Cached bool
}

type LessonAudioRequest struct {
	Words    []string
	Category string
	Level    int
	Language string
	Provider string
}

type BatchResult struct {
	Total     int
	Generated int
	Skipped   int
	Failed    int
}

type AudioStatus struct {
	Identity    string
	Exists      bool
	Stale       bool
	StorageKey  string
	URL         string
	Language    string
	Provider    string
	AccessCount int64
}

type SpeakRequest struct {
	Text     string
	Language string
	Provider string
}

type SpeakResult struct {
	Identity string
	URL      string
	Cached   bool
	Provider string
}

type AudioCacheConfig struct {
	URLTTL            time.Duration
	GenerationTimeout time.Duration
	LeaseWait         time.Duration
	LeasePoll         time.Duration
	AccessBumpTimeout time.Duration
}

func (c AudioCacheConfig) withDefaults() AudioCacheConfig {
	if c.URLTTL <= 0 {
		c.URLTTL = time.Hour
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 2 * time.Minute
	}
	if c.LeaseWait <= 0 {
		c.LeaseWait = 30 * time.Second
	}
	if c.LeasePoll <= 0 {
		c.LeasePoll = 500 * time.Millisecond
	}
	if c.AccessBumpTimeout <= 0 {
		c.AccessBumpTimeout = 5 * time.Second
	}
	return c
}

type AudioCacheService interface {
	EnsureAudio(ctx context.Context, req EnsureAudioRequest) (*EnsureAudioResult, error)
	EnsureLessonAudio(ctx context.Context, req LessonAudioRequest) error
	GenerateLessonAudio(ctx context.Context, req LessonAudioRequest) (BatchResult, error)
	CheckStatus(ctx context.Context, identity string) (*AudioStatus, error)
	Speak(ctx context.Context, req SpeakRequest) (*SpeakResult, error)
	// Drain waits for background access-count updates.
	Drain(ctx context.Context) error
}

type audioCacheService struct {
	db      *gorm.DB
	log     *logger.Logger
	repo    repos.AudioCacheRepo
	store   AudioObjectStore
	synths  *SynthesizerRegistry
	runner  TaskRunner
	lease   GenerationLease
	metrics *observability.Metrics
	cfg     AudioCacheConfig

	inflight singleflight.Group
	bg       sync.WaitGroup
}

// NewAudioCacheService wires the cache. lease and metrics may be nil.
func NewAudioCacheService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.AudioCacheRepo,
	store AudioObjectStore,
	synths *SynthesizerRegistry,
	runner TaskRunner,
	lease GenerationLease,
	metrics *observability.Metrics,
	cfg AudioCacheConfig,
) (AudioCacheService, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("audio cache: db required")
	case baseLog == nil:
		return nil, fmt.Errorf("audio cache: logger required")
	case repo == nil:
		return nil, fmt.Errorf("audio cache: repo required")
	case store == nil:
		return nil, fmt.Errorf("audio cache: object store required")
	case synths == nil:
		return nil, fmt.Errorf("audio cache: synthesizers required")
	case runner == nil:
		return nil, fmt.Errorf("audio cache: task runner required")
	}
	return &audioCacheService{
		db:      db,
		log:     baseLog.With("service", "AudioCacheService"),
		repo:    repo,
		store:   store,
		synths:  synths,
		runner:  runner,
		lease:   lease,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
	}, nil
}

func normalizeEnsure(req EnsureAudioRequest) (EnsureAudioRequest, string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return req, "", invalidArg("text is empty")
	}
	if req.Level < 0 {
		return req, "", invalidArg("level must be >= 0, got %d", req.Level)
	}
	req.Language = strings.TrimSpace(req.Language)
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	if req.Level == 0 {
		req.Level = 1
	}
	req.Kind = keys.NormalizeKind(req.Kind)
	return req, keys.Hash(req.Text, req.Language), nil
}

func (s *audioCacheService) EnsureAudio(ctx context.Context, req EnsureAudioRequest) (*EnsureAudioResult, error) {
	req, identity, err := normalizeEnsure(req)
	if err != nil {
		return nil, err
	}
	synth, err := s.synths.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctx, "audio.EnsureAudio")
	defer span.End()
	span.SetAttributes(
		attribute.String("audio.identity", identity),
		attribute.String("audio.language", req.Language),
		attribute.String("audio.kind", string(req.Kind)),
	)

	// Concurrent callers for one identity and provider share a single pass.
	// The shared work is detached from any one caller so a cancelled leader
	// does not fail the followers.
	ch := s.inflight.DoChan(identity+"|"+synth.Name(), func() (any, error) {
		work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GenerationTimeout)
		defer cancel()
		return s.ensureCoordinated(work, req, identity, synth)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		return nil, res.Err
	}
	shared := res.Val.(*ensureOutcome)
	out := *shared.result
	// Every caller served from an existing record counts as one access, even
	// when the lookup itself was shared.
	if shared.hit {
		s.bumpAccess(identity)
	}
	span.SetAttributes(attribute.Bool("audio.cached", out.Cached), attribute.Bool("audio.coalesced", res.Shared))

	if req.WithURL && out.URL == "" {
		u, err := s.store.PresignedURL(ctx, out.StorageKey, s.cfg.URLTTL)
		if err != nil {
			return nil, audioErr(StagePresign, req, err)
		}
		out.URL = u
	}
	return &out, nil
}

// ensureOutcome is the result of one shared pass. hit is set when the result
// came from an existing healthy record rather than from generation or an
// insert-race fallback.
type ensureOutcome struct {
	result *EnsureAudioResult
	hit    bool
}

func hitOutcome(res *EnsureAudioResult, err error) (*ensureOutcome, error) {
	if err != nil || res == nil {
		return nil, err
	}
	return &ensureOutcome{result: res, hit: true}, nil
}

// ensureCoordinated runs steps lookup through persist, holding the
// cross-process lease around generation when one is configured. Access
// counting is left to each caller.
func (s *audioCacheService) ensureCoordinated(ctx context.Context, req EnsureAudioRequest, identity string, synth Synthesizer) (*ensureOutcome, error) {
	dbc := dbctx.Context{Ctx: ctx}

	if out, err := hitOutcome(s.serveFromCache(dbc, req, identity, false)); err != nil || out != nil {
		return out, err
	}

	if s.lease != nil {
		release, acquired, err := s.lease.TryAcquire(ctx, identity)
		switch {
		case err != nil:
			s.metrics.IncLease("error")
			s.log.Warn("Generation lease unavailable, generating without it", "identity", identity, "error", err)
		case acquired:
			s.metrics.IncLease("acquired")
			defer func() {
				if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
					s.log.Warn("Generation lease release failed", "identity", identity, "error", rerr)
				}
			}()
			// A peer may have finished between our miss and the claim.
			if out, err := hitOutcome(s.serveFromCache(dbc, req, identity, false)); err != nil || out != nil {
				return out, err
			}
		default:
			s.metrics.IncLease("waited")
			out, err := hitOutcome(s.awaitPeer(dbc, req, identity))
			if err != nil || out != nil {
				return out, err
			}
			s.metrics.IncLease("wait_expired")
			s.log.Warn("Gave up waiting for peer generation", "identity", identity, "wait", s.cfg.LeaseWait.String())
		}
	}

	res, err := s.generateAndStore(dbc, req, identity, synth)
	if err != nil {
		return nil, err
	}
	return &ensureOutcome{result: res}, nil
}

// serveFromCache returns a result for a healthy record, heals a stale one and
// returns nil on a miss.
func (s *audioCacheService) serveFromCache(dbc dbctx.Context, req EnsureAudioRequest, identity string, bumpAccess bool) (*EnsureAudioResult, error) {
	rec, outcome, err := s.lookup(dbc, req, identity)
	s.metrics.ObserveLookup(outcome)
	if err != nil || rec == nil {
		return nil, err
	}
	if bumpAccess {
		s.bumpAccess(identity)
	}
	return &EnsureAudioResult{
		Identity:   identity,
		StorageKey: rec.StorageKey,
		Provider:   rec.Provider,
		Cached:     true,
	}, nil
}

// lookup returns the record for identity when its object is present. A record
// whose object is gone is deleted and reported as stale with a nil record.
func (s *audioCacheService) lookup(dbc dbctx.Context, req EnsureAudioRequest, identity string) (*types.AudioCache, string, error) {
	rec, err := s.repo.FindByIdentity(dbc, identity)
	if err != nil {
		return nil, observability.LookupMiss, audioErr(StageLookup, req, err)
	}
	if rec == nil {
		return nil, observability.LookupMiss, nil
	}
	ok, err := s.store.Exists(dbc.Ctx, rec.StorageKey)
	if err != nil {
		return nil, observability.LookupMiss, audioErr(StageVerify, req, err)
	}
	if ok {
		return rec, observability.LookupHit, nil
	}

	s.log.Warn("Stale audio cache record: object missing, regenerating",
		"identity", identity,
		"storage_key", rec.StorageKey,
		"text", rec.RawText,
	)
	if err := s.repo.Delete(dbc, rec); err != nil {
		return nil, observability.LookupStale, audioErr(StageHeal, req, err)
	}
	return nil, observability.LookupStale, nil
}

// awaitPeer polls for the record another process is producing. It returns nil
// when the wait budget runs out.
func (s *audioCacheService) awaitPeer(dbc dbctx.Context, req EnsureAudioRequest, identity string) (*EnsureAudioResult, error) {
	deadline := time.NewTimer(s.cfg.LeaseWait)
	defer deadline.Stop()
	tick := time.NewTicker(s.cfg.LeasePoll)
	defer tick.Stop()
	for {
		select {
		case <-dbc.Ctx.Done():
			return nil, dbc.Ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-tick.C:
			rec, err := s.repo.FindByIdentity(dbc, identity)
			if err != nil {
				return nil, audioErr(StageLookup, req, err)
			}
			if rec == nil {
				continue
			}
			return s.serveFromCache(dbc, req, identity, false)
		}
	}
}

func (s *audioCacheService) generateAndStore(dbc dbctx.Context, req EnsureAudioRequest, identity string, synth Synthesizer) (*EnsureAudioResult, error) {
	ctx := dbc.Ctx

	start := time.Now()
	audio, err := synth.Synthesize(ctx, req.Text, req.Language)
	if err == nil && len(audio) == 0 {
		err = errors.New("synthesizer returned no audio")
	}
	if err != nil {
		s.metrics.ObserveGeneration(synth.Name(), "error", time.Since(start))
		return nil, audioErr(StageGenerate, req, fmt.Errorf("%w: %w", ErrGenerationFailed, err))
	}
	s.metrics.ObserveGeneration(synth.Name(), "ok", time.Since(start))

	key := keys.ResolvePath(req.Text, identity, req.Kind, req.Category, req.Level)

	deduplicated := false
	if keys.IsGlobalKey(key) {
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return nil, audioErr(StageUpload, req, err)
		}
		deduplicated = exists
	}
	if !deduplicated {
		if err := s.store.Put(ctx, key, audio, audioMIME); err != nil {
			return nil, audioErr(StageUpload, req, err)
		}
	}
	s.metrics.ObserveUpload(deduplicated)

	size := int64(len(audio))
	rec := &types.AudioCache{
		ContentIdentity: identity,
		RawText:         req.Text,
		Language:        req.Language,
		Provider:        synth.Name(),
		StorageKey:      key,
		ByteSize:        &size,
	}
	if err := s.repo.Insert(dbc, rec); err != nil {
		if !errors.Is(err, repos.ErrDuplicateIdentity) {
			return nil, audioErr(StagePersist, req, err)
		}
		s.metrics.IncDuplicateRace()
		existing, lerr := s.repo.FindByIdentity(dbc, identity)
		if lerr != nil {
			return nil, audioErr(StagePersist, req, lerr)
		}
		if existing == nil {
			return nil, audioErr(StagePersist, req, err)
		}
		s.log.Info("Lost insert race, serving concurrent writer's record", "identity", identity, "storage_key", existing.StorageKey)
		return &EnsureAudioResult{
			Identity:   identity,
			StorageKey: existing.StorageKey,
			Provider:   existing.Provider,
			Cached:     true,
		}, nil
	}

	s.log.Info("Generated audio",
		"identity", identity,
		"storage_key", key,
		"provider", synth.Name(),
		"bytes", size,
		"deduplicated", deduplicated,
	)
	return &EnsureAudioResult{
		Identity:   identity,
		StorageKey: key,
		Provider:   synth.Name(),
		Cached:     false,
	}, nil
}

// bumpAccess records a hit without holding up the caller.
func (s *audioCacheService) bumpAccess(identity string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AccessBumpTimeout)
		defer cancel()
		if err := s.repo.IncrementAccess(dbctx.Context{Ctx: ctx}, identity); err != nil {
			s.log.Warn("Access count update failed", "identity", identity, "error", err)
		}
	}()
}

func (s *audioCacheService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
