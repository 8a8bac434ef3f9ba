package ignore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sharad-Patel1/clickhome-migration/internal/ignore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNew_RejectsRelativeRoot(t *testing.T) {
	t.Parallel()

	_, err := ignore.New("relative/dir", ignore.DefaultRules())
	require.ErrorIs(t, err, ignore.ErrRootNotAbsolute)
}

func TestMatcher_DefaultRules(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	m, err := ignore.New(root, ignore.DefaultRules())
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		dir  bool
		want bool
	}{
		{"node_modules pruned", "node_modules", true, true},
		{"bower_components pruned", "web/bower_components", true, true},
		{"first-party cache dir kept", "src/cache", true, false},
		{"first-party external dir kept", "src/app/external", true, false},
		{"file under cache dir kept", "src/cache/store.ts", false, false},
		{"nested dist pruned", "packages/web/dist", true, true},
		{"angular cache pruned", ".angular", true, true},
		{"source dir kept", "src/app", true, false},
		{"tests dir pattern", "src/__tests__", true, true},
		{"spec file", "src/app/a.spec.ts", false, true},
		{"declaration file", "src/types.d.ts", false, true},
		{"regular file", "src/app/a.ts", false, false},
		{"root itself", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(root, filepath.FromSlash(tt.path))
			if tt.dir {
				assert.Equal(t, tt.want, m.IgnoredDir(path))
			} else {
				assert.Equal(t, tt.want, m.IgnoredFile(path))
			}
		})
	}
}

func TestMatcher_SkipVendorOptIn(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	rules := ignore.DefaultRules()
	assert.False(t, rules.SkipVendor)

	rules.SkipVendor = true

	m, err := ignore.New(root, rules)
	require.NoError(t, err)

	assert.True(t, m.IgnoredDir(filepath.Join(root, "src", "cache")))
	assert.True(t, m.IgnoredDir(filepath.Join(root, "vendor")))
	assert.False(t, m.IgnoredDir(filepath.Join(root, "src", "app")))
}

func TestMatcher_NestedGitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "generated/\n# comment\n*.gen.ts\n")
	writeFile(t, filepath.Join(root, "libs", "core", ".gitignore"), "fixtures/\n")

	m, err := ignore.New(root, ignore.DefaultRules())
	require.NoError(t, err)
	require.NoError(t, m.LoadDir(filepath.Join(root, "libs", "core")))

	assert.True(t, m.IgnoredDir(filepath.Join(root, "src", "generated")))
	assert.True(t, m.IgnoredFile(filepath.Join(root, "src", "api.gen.ts")))
	assert.True(t, m.IgnoredDir(filepath.Join(root, "libs", "core", "fixtures")))
	assert.False(t, m.IgnoredDir(filepath.Join(root, "libs", "other", "fixtures")))
}

func TestMatcher_GitignoreDisabled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "generated/\n")

	m, err := ignore.New(root, ignore.Rules{})
	require.NoError(t, err)

	assert.False(t, m.IgnoredDir(filepath.Join(root, "generated")))
	assert.True(t, m.IgnoredDir(filepath.Join(root, "node_modules")))
}

func TestMatcher_Tracked(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	m, err := ignore.New(root, ignore.DefaultRules())
	require.NoError(t, err)

	assert.True(t, m.Tracked(filepath.Join(root, "src", "a.ts")))
	assert.True(t, m.Tracked(filepath.Join(root, "src", "B.tsx")))
	assert.False(t, m.Tracked(filepath.Join(root, "src", "a.js")))
	assert.False(t, m.Tracked(filepath.Join(root, "node_modules", "pkg", "index.ts")))
	assert.False(t, m.Tracked(filepath.Join(filepath.Dir(root), "outside.ts")))
}

func TestIsTempFile(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"a.ts.swp", ".a.ts.swx", "a.ts~", ".#a.ts", ".DS_Store"} {
		assert.True(t, ignore.IsTempFile(filepath.Join("/r", name)), name)
	}

	assert.False(t, ignore.IsTempFile("/r/a.ts"))
}
