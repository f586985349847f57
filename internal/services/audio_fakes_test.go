package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/fastingles-audio/internal/data/repos"
	"github.com/yungbote/fastingles-audio/internal/data/repos/testutil"
	types "github.com/yungbote/fastingles-audio/internal/domain"
	"github.com/yungbote/fastingles-audio/internal/jobs"
	"github.com/yungbote/fastingles-audio/internal/platform/dbctx"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

var errObjectMissing = errors.New("object not found")

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      map[string]int
	existsErr error
	putErr    error

	// existsDelay slows every Exists call, widening the window in which
	// concurrent lookups overlap.
	existsDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, puts: map[string]int{}}
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	delay := m.existsDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = append([]byte(nil), data...)
	m.puts[key]++
	return nil
}

func (m *memStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("presign %q: %w", key, errObjectMissing)
	}
	return "https://signed.test/" + key, nil
}

func (m *memStore) Delete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return true
}

func (m *memStore) seed(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = []byte("seeded")
}

func (m *memStore) totalPuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.puts {
		n += c
	}
	return n
}

type scriptedSynth struct {
	name  string
	fail  map[string]error
	calls atomic.Int32
	// gate, when set, blocks Synthesize until closed. started is closed on the
	// first call.
	gate      chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func newSynth(name string) *scriptedSynth {
	return &scriptedSynth{name: name, fail: map[string]error{}}
}

func (s *scriptedSynth) Name() string { return s.name }

func (s *scriptedSynth) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.startOnce.Do(func() { close(s.started) })
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := s.fail[text]; ok {
		return nil, err
	}
	return []byte("ID3:" + s.name + ":" + lang + ":" + text), nil
}

// racingRepo inserts a competing row right before the first Insert, as a
// concurrent writer in another process would.
type racingRepo struct {
	repos.AudioCacheRepo
	competitor string
	once       sync.Once
}

func (r *racingRepo) Insert(dbc dbctx.Context, rec *types.AudioCache) error {
	r.once.Do(func() {
		other := *rec
		other.StorageKey = r.competitor
		_ = r.AudioCacheRepo.Insert(dbc, &other)
	})
	return r.AudioCacheRepo.Insert(dbc, rec)
}

type fakeLease struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
	released int
	err      error
}

func newFakeLease() *fakeLease { return &fakeLease{held: map[string]bool{}} }

func (l *fakeLease) TryAcquire(_ context.Context, identity string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[identity] {
		return nil, false, nil
	}
	l.held[identity] = true
	l.acquired++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, identity)
		l.released++
		return nil
	}, true, nil
}

type harness struct {
	db     *gorm.DB
	repo   repos.AudioCacheRepo
	store  *memStore
	synth  *scriptedSynth
	runner *jobs.Runner
	svc    AudioCacheService
}

type harnessOpt func(*harnessConfig)

type harnessConfig struct {
	repo   func(db *gorm.DB, base repos.AudioCacheRepo) repos.AudioCacheRepo
	lease  GenerationLease
	cfg    AudioCacheConfig
	synths []Synthesizer
}

func withRepo(f func(db *gorm.DB, base repos.AudioCacheRepo) repos.AudioCacheRepo) harnessOpt {
	return func(c *harnessConfig) { c.repo = f }
}

// withSynth registers an extra synthesizer next to the default gtts one.
func withSynth(s Synthesizer) harnessOpt {
	return func(c *harnessConfig) { c.synths = append(c.synths, s) }
}

func withLease(l GenerationLease, wait, poll time.Duration) harnessOpt {
	return func(c *harnessConfig) {
		c.lease = l
		c.cfg.LeaseWait = wait
		c.cfg.LeasePoll = poll
	}
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	var hc harnessConfig
	for _, o := range opts {
		o(&hc)
	}

	db := testutil.DB(t)
	log := logger.Nop()
	repo := repos.NewAudioCacheRepo(db, log)
	if hc.repo != nil {
		repo = hc.repo(db, repo)
	}
	store := newMemStore()
	synth := newSynth("gtts")
	registry, err := NewSynthesizerRegistry("gtts", append([]Synthesizer{synth}, hc.synths...)...)
	if err != nil {
		t.Fatalf("NewSynthesizerRegistry: %v", err)
	}
	runner := jobs.NewRunner(log, jobs.RunnerConfig{Workers: 1, QueueSize: 4})
	t.Cleanup(func() { _ = runner.Close(context.Background()) })

	svc, err := NewAudioCacheService(db, log, repo, store, registry, runner, hc.lease, nil, hc.cfg)
	if err != nil {
		t.Fatalf("NewAudioCacheService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Drain(context.Background()) })

	return &harness{db: db, repo: repo, store: store, synth: synth, runner: runner, svc: svc}
}

func (h *harness) record(t *testing.T, identity string) *types.AudioCache {
	t.Helper()
	if err := h.svc.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	rec, err := h.repo.FindByIdentity(dbctx.Context{Ctx: context.Background()}, identity)
	if err != nil {
		t.Fatalf("FindByIdentity: %v", err)
	}
	return rec
}

func newPeerRecord(identity string) *types.AudioCache {
	return &types.AudioCache{
		ContentIdentity: identity,
		RawText:         "run",
		Language:        "en-US",
		Provider:        "peer",
		StorageKey:      "global/dictionary/r/run.mp3",
	}
}
