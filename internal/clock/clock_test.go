package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystemClockIsUTC(t *testing.T) {
	now := System().Now()
	require.Equal(t, time.UTC, now.Location())
	require.WithinDuration(t, time.Now(), now, time.Second)
}

func TestSystemTickerTicks(t *testing.T) {
	ticker := System().NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}
