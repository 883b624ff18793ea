// Package event defines the event header every queued item carries and the
// dispatch contract that turns a received event into a handler call.
//
// spec.md §3 describes a C-shaped header: a 16-32 bit type tag, a handler
// function pointer, and a handler closure pointer, with concrete events
// extending the header by struct embedding. The REDESIGN FLAGS section
// calls for expressing the function-pointer/void* pair as a proper Go
// value; we follow that and turn the header into an interface, Event,
// implemented by embedding Header. This is grounded on the teacher's
// (joeycumines/go-eventloop) Task interface in eventloop.go (a handler
// value plus bookkeeping fields, dispatched polymorphically by the loop)
// rather than on any one concrete struct.
package event

// Kind is an event's type tag. Values are partitioned into ranges exactly
// as spec.md §3 describes: built-in, reserved, and application-defined.
type Kind uint32

// Type-tag ranges, per spec.md §3 ("built-in (runtime, timer, exit,
// pooled), reserved user range, and an application-defined range").
const (
	// KindBuiltinBase starts the built-in range: runtime, timer, exit, and
	// pooled-event bookkeeping tags live here.
	KindBuiltinBase Kind = 0

	KindTimer  Kind = KindBuiltinBase + 1
	KindExit   Kind = KindBuiltinBase + 2
	KindPooled Kind = KindBuiltinBase + 3

	// KindReservedBase starts a range reserved for future core use;
	// application code must not allocate tags here.
	KindReservedBase Kind = 0x1000

	// KindApplicationBase starts the range application code is free to
	// allocate type tags from.
	KindApplicationBase Kind = 0x8000
)

// Handler is the function bound to an event, the Go analogue of the
// header's function-pointer field. It receives the event being dispatched
// and the closure bound alongside it, and returns a result, which may be
// one of the sentinel hint values below — the core never interprets it.
type Handler func(e Event, closure any) int32

// Sentinel hint values a Handler may return. spec.md §4.5: "loosely-typed
// hints for higher layers; the core does not interpret them."
const (
	ResultOK          int32 = 0
	ResultIgnored     int32 = -1
	ResultShiftFocus  int32 = -2
	ResultReboot      int32 = -3
	ResultRestart     int32 = -4
)

// Event is anything with a header: a type tag plus the handler/closure pair
// the dispatch contract invokes. Concrete event types embed Header.
type Event interface {
	Kind() Kind
	Handler() Handler
	Closure() any
}

// Header is the fixed event prologue; concrete events embed it and add
// their own fields, mirroring the C header-extension idiom of spec.md §3.
type Header struct {
	kind    Kind
	handler Handler
	closure any
}

// NewHeader constructs a Header. handler may be nil, in which case
// Dispatch falls back to the caller-supplied default handler/closure.
func NewHeader(kind Kind, handler Handler, closure any) Header {
	return Header{kind: kind, handler: handler, closure: closure}
}

func (h Header) Kind() Kind       { return h.kind }
func (h Header) Handler() Handler { return h.handler }
func (h Header) Closure() any     { return h.closure }

// validity is implemented by events whose validity a dispatch must
// re-check at dispatch time — currently only timer events (C9's
// exactly-once delivery contract). Events that don't implement it are
// always dispatched.
type validity interface {
	Valid() bool
}

// Dispatch implements the dispatch contract of spec.md §4.5:
//
//  1. If e's Kind is a timer event and it reports itself invalid (already
//     cancelled, or superseded), return 0 silently without calling
//     anything.
//  2. Otherwise call e's own handler if non-nil, else defaultHandler with
//     defaultClosure.
//  3. Return whatever the handler returned, unexamined.
func Dispatch(e Event, defaultHandler Handler, defaultClosure any) int32 {
	if e.Kind() == KindTimer {
		if v, ok := e.(validity); ok && !v.Valid() {
			return ResultOK
		}
	}

	if h := e.Handler(); h != nil {
		return h(e, e.Closure())
	}
	if defaultHandler != nil {
		return defaultHandler(e, defaultClosure)
	}
	return ResultIgnored
}
