package channel

import "time"

// Clock supplies wall-clock time for TTLs and leases.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
