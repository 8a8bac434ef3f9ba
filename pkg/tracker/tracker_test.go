package tracker_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sharad-Patel1/clickhome-migration/internal/ignore"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/scanner"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/tracker"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/watcher"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newTracker() *tracker.Tracker {
	return tracker.New(tracker.Config{Workers: 2}, tracker.Deps{Logger: observability.DiscardLogger()})
}

func fixtureRoot(t *testing.T) string {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "app", "both.ts"),
		"import { A } from '../shared/models/a';\nimport type { B } from '../shared_2023/models/b';\n")
	writeFile(t, filepath.Join(root, "app", "legacy.ts"), "import * as M from '../shared/models';\n")
	writeFile(t, filepath.Join(root, "app", "lazy.ts"), "const m = import('../shared_2023/lazy');\n")

	return root
}

func TestTracker_ScanAndQuery(t *testing.T) {
	t.Parallel()

	root := fixtureRoot(t)
	tr := newTracker()

	snap, err := tr.RunScan(context.Background(), root, ignore.DefaultRules())
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 1, snap.Partial)
	assert.Equal(t, 1, snap.Legacy)
	assert.Equal(t, 1, snap.Migrated)
	assert.Equal(t, root, tr.Root())

	got, ok := tr.GetFile("app/both.ts")
	require.True(t, ok)
	assert.Equal(t, migration.Both, got.Classification)

	_, ok = tr.GetFile(filepath.Join(root, "missing.ts"))
	assert.False(t, ok)

	legacy := tr.ListFiles(func(a *migration.FileAnalysis) bool { return a.Classification.NeedsMigration() })
	require.Len(t, legacy, 2)
	assert.Equal(t, filepath.Join(root, "app", "both.ts"), legacy[0].Path)

	assert.Equal(t, snap.Total, tr.Snapshot().Total)
}

func TestTracker_InvalidRoot(t *testing.T) {
	t.Parallel()

	_, err := newTracker().RunScan(context.Background(), filepath.Join(t.TempDir(), "nope"), ignore.DefaultRules())
	require.ErrorIs(t, err, scanner.ErrInvalidRoot)

	_, err = newTracker().Rescan(context.Background())
	require.ErrorIs(t, err, tracker.ErrNoScan)
}

func TestTracker_DeletedFileDisappears(t *testing.T) {
	t.Parallel()

	root := fixtureRoot(t)
	tr := newTracker()

	_, err := tr.RunScan(context.Background(), root, ignore.DefaultRules())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "app", "legacy.ts")))

	snap, err := tr.Rescan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Total)

	_, ok := tr.GetFile(filepath.Join(root, "app", "legacy.ts"))
	assert.False(t, ok)
}

func TestTracker_Export(t *testing.T) {
	t.Parallel()

	root := fixtureRoot(t)
	tr := newTracker()

	_, err := tr.RunScan(context.Background(), root, ignore.DefaultRules())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tr.Export(context.Background(), &buf, report.FormatCSV, report.Options{}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "app/both.ts,Partial,2,1,1", lines[1])

	buf.Reset()
	require.NoError(t, tr.Export(context.Background(), &buf, report.FormatJSON, report.Options{}))

	res, err := report.Validate(&buf)
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Errors)
}

func nextUpdate(t *testing.T, w *tracker.Watch) stats.Snapshot {
	t.Helper()

	select {
	case s, ok := <-w.Updates():
		require.True(t, ok, "updates closed")

		return s
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no update")

		return stats.Snapshot{}
	}
}

func TestTracker_WatchLifecycle(t *testing.T) {
	t.Parallel()

	root := fixtureRoot(t)
	tr := newTracker()

	_, err := tr.RunScan(context.Background(), root, ignore.DefaultRules())
	require.NoError(t, err)

	w, err := tr.StartWatch(context.Background(), root, tracker.WatchOptions{
		Rules:    ignore.DefaultRules(),
		Debounce: 30 * time.Millisecond,
	})
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "app", "legacy.ts"), "import * as M from '../shared_2023/models';\n")

	snap := nextUpdate(t, w)
	assert.Equal(t, 3, snap.Total)
	assert.Zero(t, snap.Legacy)
	assert.Equal(t, 2, snap.Migrated)

	require.NoError(t, os.Remove(filepath.Join(root, "app", "lazy.ts")))

	snap = nextUpdate(t, w)
	assert.Equal(t, 2, snap.Total)

	_, ok := tr.GetFile(filepath.Join(root, "app", "lazy.ts"))
	assert.False(t, ok)

	w.Commands() <- watcher.CmdQuit
	require.NoError(t, w.Wait())
	require.NoError(t, w.Close())

	_, open := <-w.Updates()
	assert.False(t, open)
}

func TestTracker_WatchRefreshCommand(t *testing.T) {
	t.Parallel()

	root := fixtureRoot(t)
	tr := newTracker()

	w, err := tr.StartWatch(context.Background(), root, tracker.WatchOptions{Rules: ignore.DefaultRules()})
	require.NoError(t, err)

	t.Cleanup(func() { _ = w.Close() }) //nolint:errcheck // cleanup

	w.Commands() <- watcher.CmdRefresh

	snap := nextUpdate(t, w)
	assert.Equal(t, 3, snap.Total)
}

func TestTracker_WatchInvalidRoot(t *testing.T) {
	t.Parallel()

	_, err := newTracker().StartWatch(context.Background(), filepath.Join(t.TempDir(), "nope"), tracker.WatchOptions{})
	require.ErrorIs(t, err, scanner.ErrInvalidRoot)
}
