package providers

import (
	"context"
	"time"
)

// Poll calls refresh until it reports done. It sleeps interval before each
// call and gives up with ErrTimeout after maxPolls calls. Sleeping stops early
// when ctx is canceled.
func Poll(ctx context.Context, interval time.Duration, maxPolls int, refresh func(ctx context.Context) (bool, error)) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for polls := 0; ; polls++ {
		if polls >= maxPolls {
			return ErrTimeout
		}
		if interval > 0 {
			if timer == nil {
				timer = time.NewTimer(interval)
			} else {
				timer.Reset(interval)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		done, err := refresh(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
