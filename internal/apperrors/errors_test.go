package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	upstream := errors.New("connection reset")

	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validation("duration_minutes", "must be positive"), ErrValidation},
		{"forbidden", Forbidden("session", "s1", 9, "approve"), ErrForbidden},
		{"not found", NotFound("transaction", "SES-1"), ErrNotFound},
		{"state conflict", StateConflict("s1", "approve", "SCHEDULED"), ErrStateConflict},
		{"gateway", Gateway("initialize", "timeout", upstream), ErrGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
			for _, other := range []error{ErrValidation, ErrForbidden, ErrNotFound, ErrStateConflict, ErrGateway} {
				if other == tc.sentinel {
					continue
				}
				assert.NotErrorIs(t, wrapped, other)
			}
		})
	}
}

func TestGatewayErrorKeepsUpstreamCause(t *testing.T) {
	upstream := errors.New("connection reset")
	err := Gateway("verify", "503", upstream)

	assert.ErrorIs(t, err, upstream)
	assert.Contains(t, err.Error(), "503")

	var gwErr *GatewayError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &gwErr))
	assert.Equal(t, "verify", gwErr.Op)
}

func TestStateConflictMessageNamesTransition(t *testing.T) {
	err := StateConflict("abc", "approve", "REJECTED")
	assert.Equal(t, "cannot approve session abc in state REJECTED", err.Error())
}
