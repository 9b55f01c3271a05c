package frameexport

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/deepaksharma/spanscope/internal/profiler"
)

const instrumentationName = "github.com/deepaksharma/spanscope"

// Attribute keys set on exported spans.
const (
	AttrFrameIndex  = "spanscope.frame.index"
	AttrFrameScopes = "spanscope.frame.scopes"
	AttrScopeData   = "spanscope.scope.data"
	AttrTarget      = "code.namespace"
	AttrThreadID    = "thread.id"
	AttrThreadName  = "thread.name"
)

// converter turns frames into traces: one trace per frame, a root span
// covering the frame and one child span per recorded scope.
type converter struct {
	session uint64
	scopes  map[profiler.ScopeID]profiler.ScopeDetails
}

// hashIDs derives a stable 64 bit id from the session and parts.
func (c *converter) hashIDs(parts ...uint64) uint64 {
	buf := make([]byte, 0, 8*(len(parts)+1))
	buf = binary.LittleEndian.AppendUint64(buf, c.session)
	for _, p := range parts {
		buf = binary.LittleEndian.AppendUint64(buf, p)
	}
	return xxhash.Sum64(buf)
}

func (c *converter) traceID(frame uint64) pcommon.TraceID {
	var id pcommon.TraceID
	binary.BigEndian.PutUint64(id[:8], c.hashIDs(frame, 1))
	binary.BigEndian.PutUint64(id[8:], c.hashIDs(frame, 2))
	return id
}

func (c *converter) spanID(parts ...uint64) pcommon.SpanID {
	var id pcommon.SpanID
	binary.BigEndian.PutUint64(id[:], c.hashIDs(parts...))
	return id
}

// appendFrames adds frames to ss. It returns the number of frames whose
// streams could not be decoded; their root spans are still exported.
func (c *converter) appendFrames(ss ptrace.ScopeSpans, frames []*profiler.FrameData) int {
	failed := 0
	for _, frame := range frames {
		traceID := c.traceID(frame.Index)
		rootID := c.spanID(frame.Index)

		root := ss.Spans().AppendEmpty()
		root.SetTraceID(traceID)
		root.SetSpanID(rootID)
		root.SetName(fmt.Sprintf("frame %d", frame.Index))
		root.SetKind(ptrace.SpanKindInternal)
		root.SetStartTimestamp(pcommon.Timestamp(frame.Range.Start))
		root.SetEndTimestamp(pcommon.Timestamp(frame.Range.Stop))
		root.Attributes().PutInt(AttrFrameIndex, int64(frame.Index))
		root.Attributes().PutInt(AttrFrameScopes, int64(frame.NumScopes()))

		for _, ts := range frame.Threads {
			scopes, err := profiler.ReadScopes(ts.Info.Stream)
			if err != nil {
				failed++
				continue
			}
			seq := uint64(0)
			var walk func(parent pcommon.SpanID, list []profiler.Scope)
			walk = func(parent pcommon.SpanID, list []profiler.Scope) {
				for i := range list {
					sc := &list[i]
					seq++
					id := c.spanID(frame.Index, ts.Thread.ID, seq)
					c.appendScope(ss, traceID, parent, id, ts.Thread, sc)
					walk(id, sc.Children)
				}
			}
			walk(rootID, scopes)
		}
	}
	return failed
}

func (c *converter) appendScope(ss ptrace.ScopeSpans, traceID pcommon.TraceID, parent, id pcommon.SpanID, thread profiler.ThreadInfo, sc *profiler.Scope) {
	span := ss.Spans().AppendEmpty()
	span.SetTraceID(traceID)
	span.SetSpanID(id)
	span.SetParentSpanID(parent)
	span.SetKind(ptrace.SpanKindInternal)
	span.SetStartTimestamp(pcommon.Timestamp(sc.Start))
	span.SetEndTimestamp(pcommon.Timestamp(sc.Stop))

	attrs := span.Attributes()
	if d, ok := c.scopes[sc.ID]; ok {
		span.SetName(d.Name)
		attrs.PutStr(AttrTarget, d.Target)
	} else {
		span.SetName(fmt.Sprintf("scope %d", sc.ID))
	}
	if sc.Data != "" {
		attrs.PutStr(AttrScopeData, sc.Data)
	}
	attrs.PutInt(AttrThreadID, int64(thread.ID))
	if thread.Name != "" {
		attrs.PutStr(AttrThreadName, thread.Name)
	}
}

// newTraces creates traces with one resource and one instrumentation scope.
func newTraces(serviceName string) (ptrace.Traces, ptrace.ScopeSpans) {
	traces := ptrace.NewTraces()
	rs := traces.ResourceSpans().AppendEmpty()
	rs.Resource().Attributes().PutStr("service.name", serviceName)
	ss := rs.ScopeSpans().AppendEmpty()
	ss.Scope().SetName(instrumentationName)
	return traces, ss
}
