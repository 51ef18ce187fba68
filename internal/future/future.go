// Package future defines the explicit, bounded suspension-point state
// machine used by asynchronous syscalls (§4.5, §9 Design Notes:
// "coroutine control flow ... expressed as explicit state machines").
// Go has no native async/await; the domain needs discrete, bounded
// suspension points rather than general-purpose goroutine concurrency, so
// suspension is modeled as an explicit interface instead.
package future

// Poll is the result of polling a Future once.
type Poll int

const (
	// Pending means the Future has not completed; its Waker has been (or
	// will be) retained and will be invoked when progress is possible.
	Pending Poll = iota
	// Ready means the Future completed; Value/err carry its result.
	Ready
)

// Future is a single bounded asynchronous computation: a syscall handler
// or device-driver operation that may need to suspend.
type Future interface {
	// Poll advances the computation. On Pending, the Future is
	// responsible for arranging that w is woken when it can make
	// progress again. On Ready, it returns its final (value, error).
	Poll(w *Waker) (Poll, any, error)
}

// FutureFunc adapts a plain function already holding its own state into a
// Future, for simple backends that only need one Poll-shaped closure.
type FutureFunc func(w *Waker) (Poll, any, error)

func (f FutureFunc) Poll(w *Waker) (Poll, any, error) { return f(w) }

// Done is a convenience Future that is immediately complete.
func Done(value any, err error) Future {
	return FutureFunc(func(*Waker) (Poll, any, error) { return Ready, value, err })
}

// Waker is a callable that, when invoked, marks a pending asynchronous
// computation ready to poll again (§GLOSSARY). A Waker carries the pid it
// belongs to rather than a pointer to the owning Process (§9: cyclic
// references between a process and its waker are modeled via this id
// indirection instead of a language-level weak pointer); Wake looks the
// process up through WakeFn and is a silent no-op if the process is gone.
type Waker struct {
	Pid    uint64
	WakeFn func(pid uint64)
}

// Wake invokes the wake callback for this waker's pid. A nil WakeFn (the
// zero Waker) is a no-op, matching "expiry means the wake is a no-op."
func (w *Waker) Wake() {
	if w == nil || w.WakeFn == nil {
		return
	}
	w.WakeFn(w.Pid)
}

// NewWaker constructs a Waker bound to pid, invoking wakeFn on Wake.
func NewWaker(pid uint64, wakeFn func(pid uint64)) *Waker {
	return &Waker{Pid: pid, WakeFn: wakeFn}
}
