package config

import (
	"time"

	"github.com/Sharad-Patel1/clickhome-migration/internal/cache"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/watcher"
)

// Migration defaults.
const (
	DefaultLegacyDir   = migration.DefaultLegacyDir
	DefaultMigratedDir = migration.DefaultMigratedDir
)

// Scan defaults.
const (
	DefaultScanWorkers      = 0
	DefaultScanUseGitignore = true
	DefaultScanSkipVendor   = false
	DefaultScanMaxFileSize  = "4MiB"
)

// Watch defaults.
const (
	DefaultWatchDebounce      = watcher.DefaultDebounce
	DefaultWatchQueueSize     = watcher.DefaultQueueSize
	DefaultWatchTick          = watcher.DefaultTick
	DefaultWatchTreeCacheSize = cache.DefaultTreeCacheSize
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)

// DefaultMetricsAddr leaves the metrics endpoint disabled.
const DefaultMetricsAddr = ""

// defaultDurations keeps the duration defaults in one place for setDefaults.
var defaultDurations = map[string]time.Duration{
	"watch.debounce": DefaultWatchDebounce,
	"watch.tick":     DefaultWatchTick,
}
