package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errMissing = errors.New("missing")

func TestClassifyUsesFirstMatchingRule(t *testing.T) {
	err := fmt.Errorf("lookup: %w", errMissing)
	got := Classify(err,
		Rule{Target: errMissing, Status: 404, Code: "not_found"},
		Rule{Target: errMissing, Status: 400, Code: "other"},
	)
	assert.Equal(t, 404, got.Status)
	assert.Equal(t, "not_found", got.Code)
	assert.ErrorIs(t, got, errMissing)
	assert.Equal(t, 2, got.ExitCode())
}

func TestClassifyKeepsExistingError(t *testing.T) {
	inner := New(503, "storage_unavailable", errors.New("down"))
	got := Classify(fmt.Errorf("boot: %w", inner), Rule{Target: errMissing, Status: 404, Code: "not_found"})
	assert.Same(t, inner, got)
	assert.Equal(t, 1, got.ExitCode())
}

func TestClassifyDefaultsToInternal(t *testing.T) {
	got := Classify(errors.New("boom"))
	assert.Equal(t, 500, got.Status)
	assert.Equal(t, "internal: boom", got.Error())
	assert.Nil(t, Classify(nil))
	var nilErr *Error
	assert.Equal(t, 0, nilErr.ExitCode())
}
