package power

import (
	"errors"
	"testing"
	"time"

	"github.com/itohio/gopowermon/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goodPilot(at time.Time) Observation {
	return Observation{Time: at, PilotMean: 1882, Deviation: 2, InBand: true, Valid: true}
}

func badPilot(at time.Time) Observation {
	return Observation{Time: at, PilotMean: 120, Deviation: 1760, InBand: false}
}

func TestState_String(t *testing.T) {
	for _, s := range []State{Connected, Disconnected, Reconnecting} {
		got, ok := ParseState(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "unknown", State(9).String())
	_, ok := ParseState("bogus")
	assert.False(t, ok)
}

func TestConnection_DisconnectNeedsStreak(t *testing.T) {
	c := NewConnectionStateMachine(config.Default().Connection, nil)
	assert.Equal(t, Connected, c.State())

	_, changed := c.Observe(badPilot(testStart))
	assert.False(t, changed)

	_, changed = c.Observe(goodPilot(testStart.Add(time.Second)))
	assert.False(t, changed)

	_, changed = c.Observe(badPilot(testStart.Add(2 * time.Second)))
	assert.False(t, changed, "streak restarts after a good pilot")

	tr, changed := c.Observe(badPilot(testStart.Add(3 * time.Second)))
	require.True(t, changed)
	assert.Equal(t, Connected, tr.From)
	assert.Equal(t, Disconnected, tr.To)
	assert.Equal(t, testStart.Add(3*time.Second), tr.Time)
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, testStart.Add(3*time.Second), c.LastTransition())
}

func TestConnection_ReconnectCycle(t *testing.T) {
	var reseeds []float64
	c := NewConnectionStateMachine(config.Default().Connection, func(m float64) error {
		reseeds = append(reseeds, m)
		return nil
	})

	c.Observe(badPilot(testStart))
	_, changed := c.Observe(badPilot(testStart))
	require.True(t, changed)

	// Pilot normalizes but the debounce window is still open.
	_, changed = c.Observe(goodPilot(testStart.Add(time.Second)))
	assert.False(t, changed)
	assert.Empty(t, reseeds)

	tr, changed := c.Observe(goodPilot(testStart.Add(5 * time.Second)))
	require.True(t, changed)
	assert.Equal(t, Reconnecting, tr.To)
	assert.Equal(t, []float64{1882}, reseeds)

	_, changed = c.Observe(goodPilot(testStart.Add(6 * time.Second)))
	assert.False(t, changed)
	assert.Equal(t, Reconnecting, c.State())

	tr, changed = c.Observe(goodPilot(testStart.Add(10 * time.Second)))
	require.True(t, changed)
	assert.Equal(t, Reconnecting, tr.From)
	assert.Equal(t, Connected, tr.To)
	assert.Equal(t, "valid batch", tr.Reason)
}

func TestConnection_ReseedFailureKeepsDisconnected(t *testing.T) {
	c := NewConnectionStateMachine(config.Default().Connection, func(float64) error {
		return errors.New("implausible")
	})

	c.Observe(badPilot(testStart))
	c.Observe(badPilot(testStart))
	require.Equal(t, Disconnected, c.State())

	for i := 5; i < 20; i++ {
		_, changed := c.Observe(goodPilot(testStart.Add(time.Duration(i) * time.Second)))
		assert.False(t, changed)
	}
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, testStart, c.LastTransition())
}

func TestConnection_Hysteresis(t *testing.T) {
	c := NewConnectionStateMachine(config.Default().Connection, nil)

	// 120 counts is below the disconnect threshold, so it never disconnects.
	for i := 0; i < 10; i++ {
		_, changed := c.Observe(Observation{Time: testStart.Add(time.Duration(i) * time.Second), Deviation: 120, InBand: true})
		assert.False(t, changed)
	}

	c.Observe(badPilot(testStart.Add(20 * time.Second)))
	c.Observe(badPilot(testStart.Add(21 * time.Second)))
	require.Equal(t, Disconnected, c.State())

	// ...but it is not close enough to count as reconnected either.
	for i := 30; i < 40; i++ {
		_, changed := c.Observe(Observation{Time: testStart.Add(time.Duration(i) * time.Second), Deviation: 120, InBand: true})
		assert.False(t, changed)
	}
	assert.Equal(t, Disconnected, c.State())

	_, changed := c.Observe(Observation{Time: testStart.Add(41 * time.Second), Deviation: 99, InBand: true})
	assert.True(t, changed)
	assert.Equal(t, Reconnecting, c.State())
}

func TestConnection_StableCycles(t *testing.T) {
	cfg := config.Default().Connection
	c := NewConnectionStateMachine(cfg, nil)

	c.Observe(badPilot(testStart))
	c.Observe(badPilot(testStart))
	c.Observe(goodPilot(testStart.Add(5 * time.Second)))
	require.Equal(t, Reconnecting, c.State())

	at := testStart.Add(10 * time.Second)
	for i := 1; i < cfg.StableCycles; i++ {
		o := goodPilot(at)
		o.Valid = false
		_, changed := c.Observe(o)
		require.False(t, changed, "cycle %d", i)
		at = at.Add(100 * time.Millisecond)
	}

	o := goodPilot(at)
	o.Valid = false
	tr, changed := c.Observe(o)
	require.True(t, changed)
	assert.Equal(t, Connected, tr.To)
	assert.Equal(t, "stable pilot", tr.Reason)
}

func TestConnection_LostWhileReconnecting(t *testing.T) {
	c := NewConnectionStateMachine(config.Default().Connection, nil)

	c.Observe(badPilot(testStart))
	c.Observe(badPilot(testStart))
	c.Observe(goodPilot(testStart.Add(5 * time.Second)))
	require.Equal(t, Reconnecting, c.State())

	_, changed := c.Observe(badPilot(testStart.Add(6 * time.Second)))
	assert.False(t, changed)

	tr, changed := c.Observe(badPilot(testStart.Add(10 * time.Second)))
	require.True(t, changed)
	assert.Equal(t, Disconnected, tr.To)
}

func TestConnection_AntiChatter(t *testing.T) {
	cfg := config.Default().Connection
	c := NewConnectionStateMachine(cfg, nil)

	var transitions []Transition
	at := testStart
	for i := 0; i < 600; i++ {
		var o Observation
		if (i/2)%2 == 0 {
			o = badPilot(at)
		} else {
			o = goodPilot(at)
		}
		if tr, changed := c.Observe(o); changed {
			transitions = append(transitions, tr)
		}
		at = at.Add(100 * time.Millisecond)
	}

	require.NotEmpty(t, transitions)
	for i := 1; i < len(transitions); i++ {
		gap := transitions[i].Time.Sub(transitions[i-1].Time)
		assert.GreaterOrEqual(t, gap, cfg.Debounce, "transition %d", i)
	}
	// 60 s of toggling allows at most one transition per window.
	assert.LessOrEqual(t, len(transitions), 13)
}

func TestConnection_Reset(t *testing.T) {
	c := NewConnectionStateMachine(config.Default().Connection, nil)
	c.Observe(badPilot(testStart))
	c.Observe(badPilot(testStart))
	require.Equal(t, Disconnected, c.State())

	c.Reset()
	assert.Equal(t, Connected, c.State())
	assert.True(t, c.LastTransition().IsZero())
}

func TestConnection_InvalidStreak(t *testing.T) {
	cfg := config.Default().Connection
	cfg.InvalidStreak = 3
	c := NewConnectionStateMachine(cfg, nil)

	// An unplugged input floating at the bias level keeps the pilot good.
	floating := func(at time.Duration) Observation {
		return Observation{Time: testStart.Add(at), PilotMean: 1880, InBand: true}
	}

	c.Observe(floating(0))
	c.Observe(floating(time.Second))
	_, changed := c.Observe(goodPilot(testStart.Add(2 * time.Second)))
	assert.False(t, changed, "a valid batch restarts the streak")

	c.Observe(floating(3 * time.Second))
	_, changed = c.Observe(floating(4 * time.Second))
	assert.False(t, changed)
	assert.Equal(t, Connected, c.State())

	tr, changed := c.Observe(floating(5 * time.Second))
	require.True(t, changed)
	assert.Equal(t, Disconnected, tr.To)
	assert.Equal(t, "no valid batch", tr.Reason)

	_, changed = c.Observe(floating(20 * time.Second))
	assert.False(t, changed, "a good pilot alone does not reconnect")

	tr, changed = c.Observe(goodPilot(testStart.Add(21 * time.Second)))
	require.True(t, changed)
	assert.Equal(t, Reconnecting, tr.To)
}

func TestConnection_InvalidStreakDisabled(t *testing.T) {
	c := NewConnectionStateMachine(config.Default().Connection, nil)

	for i := 0; i < 100; i++ {
		_, changed := c.Observe(Observation{
			Time:      testStart.Add(time.Duration(i) * time.Second),
			PilotMean: 1880,
			InBand:    true,
		})
		require.False(t, changed, "cycle %d", i)
	}
	assert.Equal(t, Connected, c.State())
}
