package profiler

import "sync/atomic"

var disabled atomic.Bool

func init() { disabled.Store(defaultDisabled) }

// SetDisabled turns scope recording on or off for every profiler in the
// process. Timers begun while disabled stay no-ops even if re-enabled before End.
func SetDisabled(v bool) { disabled.Store(v) }

// Disabled reports whether scope recording is off.
func Disabled() bool { return disabled.Load() }
