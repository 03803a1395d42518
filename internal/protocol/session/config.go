package session

import "github.com/danmuck/bsonctl/internal/protocol/frame"

// Config defines channel behavior.
type Config struct {
	Limits frame.Limits
	// SkipInvalid drops frames whose document fails to decode instead of
	// ending Serve. Frame-level errors always end Serve.
	SkipInvalid bool
}

// DefaultConfig returns the channel defaults.
func DefaultConfig() Config {
	return Config{
		Limits:      frame.DefaultLimits(),
		SkipInvalid: false,
	}
}
