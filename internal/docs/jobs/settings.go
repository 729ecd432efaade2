package jobs

import (
	"time"

	"github.com/Laisky/docspace/library/config"
)

// Settings configures the queue and its worker pool.
type Settings struct {
	PollInterval        time.Duration
	IndexConcurrency    int
	ReminderConcurrency int
	MaxAttempts         int
	RetryBackoff        time.Duration
	RetryBackoffMax     time.Duration
	StaleAfter          time.Duration
	EventsChannel       string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		PollInterval:        500 * time.Millisecond,
		IndexConcurrency:    5,
		ReminderConcurrency: 5,
		MaxAttempts:         5,
		RetryBackoff:        time.Second,
		RetryBackoffMax:     5 * time.Minute,
		StaleAfter:          10 * time.Minute,
	}
}

// LoadSettingsFromConfig reads configuration and applies safe defaults.
func LoadSettingsFromConfig() Settings {
	settings := Settings{
		PollInterval:        config.DurationMS("settings.docs.jobs.poll_interval_ms", 500),
		IndexConcurrency:    config.Int("settings.docs.jobs.index_concurrency", 5),
		ReminderConcurrency: config.Int("settings.docs.jobs.reminder_concurrency", 5),
		MaxAttempts:         config.Int("settings.docs.jobs.max_attempts", 5),
		RetryBackoff:        config.DurationMS("settings.docs.jobs.retry_backoff_ms", 1000),
		RetryBackoffMax:     config.DurationMS("settings.docs.jobs.retry_backoff_max_ms", 300_000),
		StaleAfter:          config.DurationSeconds("settings.docs.jobs.stale_after_seconds", 600),
		EventsChannel:       config.String("settings.docs.jobs.events_channel", ""),
	}
	return settings.withDefaults()
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.PollInterval <= 0 {
		s.PollInterval = def.PollInterval
	}
	if s.IndexConcurrency <= 0 {
		s.IndexConcurrency = def.IndexConcurrency
	}
	if s.ReminderConcurrency <= 0 {
		s.ReminderConcurrency = def.ReminderConcurrency
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = def.MaxAttempts
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = def.RetryBackoff
	}
	if s.RetryBackoffMax < s.RetryBackoff {
		s.RetryBackoffMax = s.RetryBackoff
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = def.StaleAfter
	}
	return s
}
