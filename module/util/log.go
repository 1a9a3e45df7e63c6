package util

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// LogProgressFunc adds the given number of completed items (e.g. imported
// blocks) to the progress. It may be called concurrently.
type LogProgressFunc func(add uint64)

type LogProgressConfig struct {
	// Message prefixes every progress line.
	Message string
	// Total is the amount of progress which counts as 100%.
	Total uint64
	// Ticks is the number of evenly spaced progress lines, including the one at 0%.
	Ticks uint64
	// NoDataLogDuration forces a progress line if the last one is older than this
	// and new progress arrives between ticks.
	NoDataLogDuration time.Duration
}

// DefaultLogProgressConfig logs every 10% and at least once a minute while
// progress is being made.
func DefaultLogProgressConfig(message string, total uint64) LogProgressConfig {
	return LogProgressConfig{
		Message:           message,
		Total:             total,
		Ticks:             11,
		NoDataLogDuration: time.Minute,
	}
}

// LogProgress returns a function which accumulates progress and logs it at
// every tick boundary that is crossed.
func LogProgress(log zerolog.Logger, config LogProgressConfig) LogProgressFunc {
	start := time.Now()
	lastLog := atomic.NewInt64(start.UnixMilli())
	current := atomic.NewUint64(0)

	var mu sync.Mutex
	logAt := func(value uint64) {
		mu.Lock()
		defer mu.Unlock()

		elapsed := time.Since(start).Round(time.Second)
		percentage := float64(100)
		if config.Total > 0 {
			percentage = float64(value) / float64(config.Total) * 100
		}

		event := log.Info().
			Uint64("current", value).
			Uint64("total", config.Total).
			Str("elapsed", elapsed.String())
		if value < config.Total && percentage > 0 {
			eta := time.Duration(float64(elapsed) / percentage * (100 - percentage))
			event = event.Str("eta", eta.Round(time.Second).String())
		}
		event.Msgf("%s progress %.1f%%", config.Message, percentage)
	}

	logAt(0)

	ticks := config.Ticks
	if ticks < 2 {
		ticks = 2
	}
	increment := config.Total / (ticks - 1)
	if increment == 0 {
		increment = 1
	}
	// the last tick has to land exactly on Total
	overflow := config.Total % increment
	quiet := config.NoDataLogDuration.Milliseconds()

	return func(add uint64) {
		if add == 0 {
			return
		}
		now := time.Now().UnixMilli()
		value := current.Add(add)
		previous := lastLog.Swap(now)

		fromTick := (value - add - overflow) / increment
		toTick := (value - overflow) / increment
		if value-add < overflow {
			fromTick = 0
		}
		if value < overflow {
			toTick = 0
		}

		if fromTick == toTick {
			if now-previous > quiet {
				logAt(value)
			}
			return
		}
		for tick := fromTick; tick < toTick; tick++ {
			logAt(increment*(tick+1) + overflow)
		}
	}
}
