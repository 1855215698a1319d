package emit

// Emitter receives events from the engine.
//
// Emit is called synchronously on the run's goroutine, so implementations
// should return quickly and must be safe for concurrent use when several
// runs share one emitter. Emit must not panic.
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(event Event) { f(event) }

// MultiEmitter fans each event out to several emitters in order.
type MultiEmitter []Emitter

// NewMultiEmitter returns an emitter that forwards to every non-nil emitter.
func NewMultiEmitter(emitters ...Emitter) MultiEmitter {
	out := make(MultiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Emit implements Emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
