package service

import "time"

// Backoff is an exponential retry schedule for ConnectRetry.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second, Factor: 2}
}

// Start returns a fresh schedule; the zero fields take DefaultBackoff values.
func (b Backoff) Start() *Retry {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Factor < 1 {
		b.Factor = d.Factor
	}
	return &Retry{b: b, t: b.Initial}
}

type Retry struct {
	b Backoff
	t time.Duration
}

// Next returns the wait before the next attempt and grows the one after it.
func (r *Retry) Next() time.Duration {
	wait := r.t
	r.t = time.Duration(float64(r.t) * r.b.Factor)
	if r.t > r.b.Max {
		r.t = r.b.Max
	}
	return wait
}
