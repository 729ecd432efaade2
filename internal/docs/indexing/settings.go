package indexing

import (
	"time"

	"github.com/Laisky/docspace/library/config"
)

// Settings configures chunking and the stale document reconciler.
type Settings struct {
	ChunkSize    int
	ChunkOverlap int
	// MaxChunks rejects documents producing more chunks. Zero disables the limit.
	MaxChunks int
	Sync      SyncSettings
}

// SyncSettings configures the reconciler sweep.
type SyncSettings struct {
	Interval    time.Duration
	BatchSize   int
	MaxPerSweep int
	// StuckAfter is how long a queued or processing index job may sit before it is re-enqueued.
	StuckAfter time.Duration
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		MaxChunks:    200,
		Sync: SyncSettings{
			Interval:    30 * time.Minute,
			BatchSize:   200,
			MaxPerSweep: 5000,
			StuckAfter:  time.Hour,
		},
	}
}

// LoadSettingsFromConfig reads configuration and applies safe defaults.
func LoadSettingsFromConfig() Settings {
	settings := Settings{
		ChunkSize:    config.Int("settings.docs.index.chunk_size", DefaultChunkSize),
		ChunkOverlap: config.Int("settings.docs.index.chunk_overlap", DefaultChunkOverlap),
		MaxChunks:    config.Int("settings.docs.index.max_chunks", 200),
		Sync: SyncSettings{
			Interval:    config.DurationSeconds("settings.docs.sync.interval_seconds", 1800),
			BatchSize:   config.Int("settings.docs.sync.batch_size", 200),
			MaxPerSweep: config.Int("settings.docs.sync.max_per_sweep", 5000),
			StuckAfter:  config.DurationSeconds("settings.docs.sync.stuck_after_seconds", 3600),
		},
	}
	return settings.withDefaults()
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.ChunkSize <= 0 {
		s.ChunkSize = def.ChunkSize
	}
	if s.ChunkOverlap < 0 {
		s.ChunkOverlap = 0
	}
	if s.ChunkOverlap >= s.ChunkSize {
		s.ChunkOverlap = s.ChunkSize - 1
	}
	if s.MaxChunks < 0 {
		s.MaxChunks = 0
	}
	if s.Sync.Interval <= 0 {
		s.Sync.Interval = def.Sync.Interval
	}
	if s.Sync.BatchSize <= 0 {
		s.Sync.BatchSize = def.Sync.BatchSize
	}
	if s.Sync.MaxPerSweep <= 0 {
		s.Sync.MaxPerSweep = def.Sync.MaxPerSweep
	}
	if s.Sync.StuckAfter <= 0 {
		s.Sync.StuckAfter = def.Sync.StuckAfter
	}
	return s
}
