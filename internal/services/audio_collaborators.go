package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/fastingles-audio/internal/jobs"
)

// ProviderBrowser asks the client to speak locally when no stored audio exists.
const ProviderBrowser = "browser"

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, languageCode string) ([]byte, error)
}

// AudioObjectStore is the slice of the bucket adapter the cache needs.
type AudioObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) bool
}

// GenerationLease is an optional cross-process claim on one identity.
type GenerationLease interface {
	TryAcquire(ctx context.Context, identity string) (release func(context.Context) error, acquired bool, err error)
}

// TaskRunner schedules detached background work.
type TaskRunner interface {
	Submit(ctx context.Context, t jobs.Task) error
}

// SynthesizerRegistry resolves provider names to synthesizers.
type SynthesizerRegistry struct {
	byName      map[string]Synthesizer
	defaultName string
}

func NewSynthesizerRegistry(defaultName string, synths ...Synthesizer) (*SynthesizerRegistry, error) {
	r := &SynthesizerRegistry{byName: map[string]Synthesizer{}}
	for _, s := range synths {
		if s == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(s.Name()))
		if name == "" || name == ProviderBrowser {
			return nil, fmt.Errorf("synthesizer name %q is reserved or empty", s.Name())
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("synthesizer %q registered twice", name)
		}
		r.byName[name] = s
	}
	if len(r.byName) == 0 {
		return nil, fmt.Errorf("no synthesizers registered")
	}
	defaultName = strings.ToLower(strings.TrimSpace(defaultName))
	if defaultName == "" {
		defaultName = r.Names()[0]
	}
	if _, ok := r.byName[defaultName]; !ok {
		return nil, fmt.Errorf("default synthesizer %q is not registered (have %v)", defaultName, r.Names())
	}
	r.defaultName = defaultName
	return r, nil
}

// Resolve returns the named synthesizer, or the default for an empty name.
func (r *SynthesizerRegistry) Resolve(name string) (Synthesizer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.defaultName
	}
	s, ok := r.byName[name]
	if !ok {
		return nil, invalidArg("unknown tts provider %q", name)
	}
	return s, nil
}

func (r *SynthesizerRegistry) Default() Synthesizer { return r.byName[r.defaultName] }

func (r *SynthesizerRegistry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
