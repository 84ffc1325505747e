package risk

import (
	"errors"
	"testing"
	"time"

	"trading-relay/src/helpers"
	"trading-relay/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestMaxOpenTrades(t *testing.T) {
	g := NewGuard(0, clock)
	s := models.DefaultSettings()
	s.MaxOpenTrades = 2

	assert.NoError(t, g.Check(Input{OpenPositions: 1, Settings: s}))
	err := g.Check(Input{OpenPositions: 2, Settings: s})
	require.Error(t, err)
	assert.True(t, errors.Is(err, helpers.ErrRiskRejected))
	assert.Contains(t, err.Error(), "max open trades")

	s.MaxOpenTrades = 0
	assert.NoError(t, g.Check(Input{OpenPositions: 50, Settings: s}), "zero disables the limit")
}

func TestCooldown(t *testing.T) {
	g := NewGuard(time.Minute, clock)
	s := models.MSettings{}

	err := g.Check(Input{Settings: s, LastTrade: now.Add(-20 * time.Second)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40s remaining")
	assert.NoError(t, g.Check(Input{Settings: s, LastTrade: now.Add(-time.Minute)}))
	assert.NoError(t, g.Check(Input{Settings: s}))
}

func TestDrawdownLimit(t *testing.T) {
	g := NewGuard(0, clock)
	s := models.MSettings{DrawdownLimit: 10}
	g.ObserveBalance("CR1", 1000)

	assert.NoError(t, g.Check(Input{Settings: s, Account: "CR1", Balance: 950}))
	err := g.Check(Input{Settings: s, Account: "CR1", Balance: 900})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-100.00")
}

func TestDrawdownReferenceIsPerAccount(t *testing.T) {
	g := NewGuard(0, clock)
	s := models.MSettings{DrawdownLimit: 10}

	assert.NoError(t, g.Check(Input{Settings: s, Account: "CR1", Balance: 10000}))
	assert.NoError(t, g.Check(Input{Settings: s, Account: "VRTC9", Balance: 100}))
	assert.NoError(t, g.Check(Input{Settings: s, Account: "VRTC9", Balance: 95}))
	assert.Error(t, g.Check(Input{Settings: s, Account: "VRTC9", Balance: 80}))
	assert.Error(t, g.Check(Input{Settings: s, Account: "CR1", Balance: 8000}))
}

func TestDrawdownReferenceResetsDaily(t *testing.T) {
	day := now
	g := NewGuard(0, func() time.Time { return day })
	s := models.MSettings{DrawdownLimit: 10}

	g.ObserveBalance("CR1", 1000)
	require.Error(t, g.Check(Input{Settings: s, Account: "CR1", Balance: 800}))

	day = now.Add(24 * time.Hour)
	assert.NoError(t, g.Check(Input{Settings: s, Account: "CR1", Balance: 800}))
}

func TestClampStake(t *testing.T) {
	cases := []struct {
		name          string
		req, min, max float64
		ct            string
		want          float64
		clamped       bool
	}{
		{"inside", 5, 0.35, 100, "CALL", 5, false},
		{"below min", 0.1, 0.35, 100, "CALL", 0.35, true},
		{"above max", 500, 0.35, 100, "PUT", 100, true},
		{"multiplier floor", 0.5, 0.35, 100, "MULTUP", 1, true},
		{"unknown limits", 10000, 0, 0, "CALL", 5000, true},
		{"rounds to cents", 1.23456, 0.35, 100, "CALL", 1.23, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, clamped := ClampStake(tc.req, tc.min, tc.max, tc.ct)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.clamped, clamped)
		})
	}
}
