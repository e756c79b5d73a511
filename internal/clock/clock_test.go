package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresOnlyWhenDue(t *testing.T) {
	f := NewFake(epoch)
	fired := 0
	f.AfterFunc(3*time.Second, func() { fired++ })

	f.Advance(2999 * time.Millisecond)
	assert.Equal(t, 0, fired)
	f.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)
	f.Advance(time.Hour)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, f.Pending())
}

func TestFake_StoppedTimerNeverFires(t *testing.T) {
	f := NewFake(epoch)
	fired := false
	tm := f.AfterFunc(time.Second, func() { fired = true })
	require.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	f.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFake_TickerDropsWhenFull(t *testing.T) {
	f := NewFake(epoch)
	tk := f.NewTicker(time.Second)
	defer tk.Stop()

	f.Advance(5 * time.Second)
	select {
	case ts := <-tk.C():
		assert.Equal(t, epoch.Add(time.Second), ts)
	default:
		t.Fatal("expected a tick")
	}
	select {
	case <-tk.C():
		t.Fatal("ticks beyond the buffer should be dropped")
	default:
	}
	assert.Equal(t, epoch.Add(5*time.Second), f.Now())
}
