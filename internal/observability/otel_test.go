package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOtelSampleRatio(t *testing.T) {
	cases := map[string]float64{
		"":     0.1,
		"0.5":  0.5,
		"-1":   0,
		"3":    1,
		"nope": 0.1,
	}
	for raw, want := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", raw)
		assert.Equal(t, want, otelSampleRatio(), "raw=%q", raw)
	}
}

func TestOtelHeaders(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc, bad, =v, tenant=fa")
	assert.Equal(t, map[string]string{"x-api-key": "abc", "tenant": "fa"}, otelHeaders())

	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", ",,")
	assert.Nil(t, otelHeaders())
}
