package helpers

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"sentinel", ErrRequestTimeout, KindTimeout},
		{"wrapped sentinel", Wrap(ErrPositionNotFound, "contract %d", 42), KindPositionNotFound},
		{"validation", NewValidationError("symbol is required"), KindValidation},
		{"upstream", fmt.Errorf("buy: %w", NewUpstreamError("InvalidPrice", "price moved")), KindUpstream},
		{"transport", NewTransportError("read", errors.New("eof")), KindTransport},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	err := Wrap(ErrLinkDown, "authorize")
	assert.True(t, errors.Is(err, ErrLinkDown))
	assert.False(t, errors.Is(err, ErrRequestTimeout))
	assert.Equal(t, "authorize: upstream link down", err.Error())
}

func TestUpstreamErrorMessage(t *testing.T) {
	assert.Equal(t, "Token invalid (InvalidToken)", NewUpstreamError("InvalidToken", "Token invalid").Error())
	assert.Equal(t, "nope", NewUpstreamError("", "nope").Error())
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)

	var got []time.Duration
	for i := 0; i < 7; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 1, b.Attempts())
}
