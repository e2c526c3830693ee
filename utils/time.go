package utils

import "time"

// StartTimer invokes f every millis milliseconds until the returned
// channel is closed.
func StartTimer(millis int, f func(now time.Time)) chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(millis) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				f(now)
			case <-done:
				return
			}
		}
	}()
	return done
}
