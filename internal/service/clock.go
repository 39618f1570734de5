package service

import "time"

// Clock returns the current instant. Services take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}
