package navigation

import "time"

// Clock supplies time and timers to sessions and registries.
type Clock interface {
	Now() time.Time
	AfterFunc(delay time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents the callback from running and reports whether it did.
	Stop() bool
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(delay time.Duration, f func()) Timer {
	return time.AfterFunc(delay, f)
}
