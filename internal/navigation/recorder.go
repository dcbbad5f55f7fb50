package navigation

import (
	"context"
	"time"

	"example.com/userstate/internal/ratelimit"
)

// Recorder coalesces bursts of screen transitions into a single Save.
type Recorder struct {
	cache    *Cache
	debounce *ratelimit.Debouncer[string]
}

// NewRecorder wraps cache. onError receives failed writes; it may be nil.
func NewRecorder(cache *Cache, wait time.Duration, onError func(error), opts ...ratelimit.Option) *Recorder {
	r := &Recorder{cache: cache}
	r.debounce = ratelimit.Debounce(wait, func(screen string) {
		if err := cache.Save(context.Background(), screen); err != nil {
			cache.logger.Warn().Err(err).Str("screen", screen).Msg("navigation save failed")
			if onError != nil {
				onError(err)
			}
		}
	}, opts...)
	return r
}

// Record schedules screen to be saved once transitions settle.
func (r *Recorder) Record(screen string) {
	r.debounce.Call(screen)
}

// Flush writes the pending screen now, if any.
func (r *Recorder) Flush() bool {
	return r.debounce.Flush()
}

// Stop drops any pending write.
func (r *Recorder) Stop() {
	r.debounce.Cancel()
}
