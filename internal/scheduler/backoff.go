package scheduler

import "time"

// Backoff computes the delay before the whole cycle is retried.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// Delay returns min(Base*2^(failures-1), Max) plus jitter*Jitter, where
// jitter is a number in [0, 1). The first failure waits Base.
func (b Backoff) Delay(failures int, jitter float64) time.Duration {
	d := b.Base
	for i := 1; i < failures && i < 63; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			break
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if jitter > 0 && b.Jitter > 0 {
		d += time.Duration(jitter * float64(b.Jitter))
	}
	return d
}
