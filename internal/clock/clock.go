// Package clock centralises the wall-clock reads the pipeline depends on,
// so tests can substitute a deterministic source.
package clock

import "time"

// NowNanos returns the current time as nanoseconds since the Unix epoch.
func NowNanos() int64 { return time.Now().UnixNano() }
