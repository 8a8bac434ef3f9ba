package watcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/watcher"
)

const testWindow = 40 * time.Millisecond

func startDebouncer(t *testing.T) (chan<- watcher.Event, <-chan watcher.Request, *watcher.Debouncer) {
	t.Helper()

	events := make(chan watcher.Event, 64)
	out := make(chan watcher.Request, 64)
	d := watcher.NewDebouncer(testWindow, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = d.Run(ctx, events) //nolint:errcheck // cancelled on cleanup
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return events, out, d
}

func receive(t *testing.T, out <-chan watcher.Request) watcher.Request {
	t.Helper()

	select {
	case r := <-out:
		return r
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no request received")

		return watcher.Request{}
	}
}

func assertQuiet(t *testing.T, out <-chan watcher.Request) {
	t.Helper()

	select {
	case r := <-out:
		assert.Failf(t, "unexpected request", "%+v", r)
	case <-time.After(3 * testWindow):
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	t.Parallel()

	events, out, _ := startDebouncer(t)

	for range 10 {
		events <- watcher.Event{Op: watcher.OpReanalyze, Path: "/r/a.ts"}
	}

	r := receive(t, out)
	assert.Equal(t, watcher.OpReanalyze, r.Op)
	assert.Equal(t, "/r/a.ts", r.Path)
	assert.True(t, r.Last)
	assert.Equal(t, uint64(1), r.Batch)

	assertQuiet(t, out)

	events <- watcher.Event{Op: watcher.OpReanalyze, Path: "/r/a.ts"}

	second := receive(t, out)
	assert.Equal(t, uint64(2), second.Batch)
	assert.True(t, second.Last)
}

func TestDebouncer_FirstSeenOrderAndBatch(t *testing.T) {
	t.Parallel()

	events, out, _ := startDebouncer(t)

	events <- watcher.Event{Op: watcher.OpReanalyze, Path: "/r/b.ts"}
	events <- watcher.Event{Op: watcher.OpReanalyze, Path: "/r/a.ts"}
	events <- watcher.Event{Op: watcher.OpReanalyze, Path: "/r/b.ts"}

	first := receive(t, out)
	second := receive(t, out)

	assert.Equal(t, "/r/b.ts", first.Path)
	assert.False(t, first.Last)
	assert.Equal(t, "/r/a.ts", second.Path)
	assert.True(t, second.Last)
	assert.Equal(t, first.Batch, second.Batch)
}

func TestDebouncer_MergeRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ops  []watcher.Op
		want watcher.Op
	}{
		{"write then remove", []watcher.Op{watcher.OpReanalyze, watcher.OpRemove}, watcher.OpRemove},
		{"remove then create", []watcher.Op{watcher.OpRemove, watcher.OpReanalyze}, watcher.OpReanalyze},
		{"repeated remove", []watcher.Op{watcher.OpRemove, watcher.OpRemove}, watcher.OpRemove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			events, out, _ := startDebouncer(t)

			for _, op := range tt.ops {
				events <- watcher.Event{Op: op, Path: "/r/x.ts"}
			}

			r := receive(t, out)
			assert.Equal(t, tt.want, r.Op)
			assert.True(t, r.Last)
		})
	}
}

func TestDebouncer_RescanSupersedesPending(t *testing.T) {
	t.Parallel()

	events, out, _ := startDebouncer(t)

	events <- watcher.Event{Op: watcher.OpReanalyze, Path: "/r/a.ts"}
	events <- watcher.Event{Op: watcher.OpRescan}
	events <- watcher.Event{Op: watcher.OpReanalyze, Path: "/r/b.ts"}

	first := receive(t, out)
	second := receive(t, out)

	assert.Equal(t, watcher.OpRescan, first.Op)
	assert.Equal(t, "/r/b.ts", second.Path)
	assert.True(t, second.Last)
	assertQuiet(t, out)
}

func TestDebouncer_FlushesOnClose(t *testing.T) {
	t.Parallel()

	events := make(chan watcher.Event, 4)
	out := make(chan watcher.Request, 4)
	d := watcher.NewDebouncer(time.Hour, out)

	events <- watcher.Event{Op: watcher.OpRemove, Path: "/r/a.ts"}
	close(events)

	require.NoError(t, d.Run(context.Background(), events))
	require.Len(t, out, 1)

	r := <-out
	assert.Equal(t, watcher.OpRemove, r.Op)
	assert.Equal(t, watcher.StateIdle, d.State())
}

func TestDebouncer_BlocksOnFullQueue(t *testing.T) {
	t.Parallel()

	events := make(chan watcher.Event, 4)
	out := make(chan watcher.Request)
	d := watcher.NewDebouncer(time.Millisecond, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- d.Run(ctx, events) }()

	events <- watcher.Event{Op: watcher.OpReanalyze, Path: "/r/a.ts"}

	require.Eventually(t, func() bool { return d.State() == watcher.StateFlushing }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestOp_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "reanalyze", watcher.OpReanalyze.String())
	assert.Equal(t, "remove", watcher.OpRemove.String())
	assert.Equal(t, "rescan", watcher.OpRescan.String())
	assert.Equal(t, "unknown", watcher.Op(0).String())
	assert.Equal(t, "armed", watcher.StateArmed.String())
}

func TestSourceError_MatchesSentinel(t *testing.T) {
	t.Parallel()

	err := error(&watcher.SourceError{Root: "/r", Err: watcher.ErrRootRemoved})

	require.ErrorIs(t, err, watcher.ErrWatchSource)
	require.ErrorIs(t, err, watcher.ErrRootRemoved)
	assert.Contains(t, err.Error(), "/r")
}
