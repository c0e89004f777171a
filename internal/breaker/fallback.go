package breaker

// WithFallback wraps a Breaker so rejected or failed operations run a
// fallback instead, composing behavior around the one authoritative
// breaker rather than subclassing it.
type WithFallback struct {
	breaker  *Breaker
	fallback func(error) error
}

// NewWithFallback creates a fallback wrapper. fallback receives the
// primary error and may recover or return its own error.
func NewWithFallback(b *Breaker, fallback func(error) error) *WithFallback {
	return &WithFallback{breaker: b, fallback: fallback}
}

// Execute runs op under the wrapped breaker, invoking the fallback on
// any error, including fast rejection.
func (w *WithFallback) Execute(op func() error) error {
	err := w.breaker.Execute(op)
	if err == nil {
		return nil
	}
	if w.fallback == nil {
		return err
	}
	return w.fallback(err)
}

// Status returns the wrapped breaker's snapshot.
func (w *WithFallback) Status() Status {
	return w.breaker.Status()
}
