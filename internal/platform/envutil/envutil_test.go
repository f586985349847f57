package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("AUDIO_URL_TTL", "")
	if got := Duration("AUDIO_URL_TTL", time.Hour); got != time.Hour {
		t.Fatalf("default: got %v", got)
	}
	t.Setenv("AUDIO_URL_TTL", "120")
	if got := Duration("AUDIO_URL_TTL", time.Hour); got != 2*time.Minute {
		t.Fatalf("seconds: got %v", got)
	}
	t.Setenv("AUDIO_URL_TTL", "90s")
	if got := Duration("AUDIO_URL_TTL", time.Hour); got != 90*time.Second {
		t.Fatalf("duration string: got %v", got)
	}
	t.Setenv("AUDIO_URL_TTL", "-5")
	if got := Duration("AUDIO_URL_TTL", time.Hour); got != time.Hour {
		t.Fatalf("negative should fall back: got %v", got)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "on")
	if !Bool("OTEL_ENABLED", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("OTEL_ENABLED", "maybe")
	if Bool("OTEL_ENABLED", false) {
		t.Fatalf("garbage should fall back to default")
	}
	t.Setenv("AUDIO_BATCH_WORKERS", "x")
	if got := Int("AUDIO_BATCH_WORKERS", 2); got != 2 {
		t.Fatalf("int fallback: got %d", got)
	}
}
