package carrier

import (
	"context"
	"time"
)

// Tick is one countdown refresh.
type Tick struct {
	At        time.Time
	Remaining time.Duration
	Minutes   int
	Expired   bool
}

// Countdown emits a Tick right away and then every interval until the share
// runs out or ctx is done. The channel is closed afterwards.
func Countdown(ctx context.Context, share *Share, interval time.Duration) <-chan Tick {
	return countdown(ctx, share, interval, time.Now)
}

func countdown(ctx context.Context, share *Share, interval time.Duration, now func() time.Time) <-chan Tick {
	out := make(chan Tick, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			t := now()
			tick := Tick{
				At:        t,
				Remaining: share.Remaining(t),
				Minutes:   share.RemainingMinutes(t),
				Expired:   share.Token.Expired(t),
			}
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
			if tick.Remaining == 0 {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
