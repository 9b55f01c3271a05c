package tracing

import "go.uber.org/zap/zapcore"

// Kind distinguishes spans from events.
type Kind uint8

const (
	KindSpan Kind = iota + 1
	KindEvent
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpan:
		return "span"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Metadata describes a span or event callsite.
type Metadata struct {
	Name   string
	Target string
	Level  zapcore.Level
	Kind   Kind
}

// ID identifies a live span. Zero is never a valid id.
type ID uint64

// Attributes are the fields a span was created with.
type Attributes struct {
	Meta   *Metadata
	Fields []Field
}

// Record holds fields recorded on a span after creation.
type Record struct {
	Fields []Field
}

// Event is a point in time log record, optionally inside a span.
type Event struct {
	Meta    *Metadata
	Message string
	Fields  []Field
	// Parent is the innermost span entered on the emitting goroutine, or 0.
	Parent ID
}
