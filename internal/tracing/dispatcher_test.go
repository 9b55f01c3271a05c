package tracing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// recordingLayer records every notification it receives.
type recordingLayer struct {
	BaseLayer
	mu     sync.Mutex
	calls  []string
	events []*Event
}

func (l *recordingLayer) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *recordingLayer) OnNewSpan(attrs *Attributes, id ID, ctx Context) {
	l.add("new:" + attrs.Meta.Name)
}

func (l *recordingLayer) OnRecord(id ID, values *Record, ctx Context) {
	span, _ := ctx.Span(id)
	l.add("record:" + span.Metadata().Name)
}

func (l *recordingLayer) OnEnter(id ID, ctx Context) {
	span, _ := ctx.Span(id)
	l.add("enter:" + span.Metadata().Name)
}

func (l *recordingLayer) OnExit(id ID, ctx Context) {
	span, _ := ctx.Span(id)
	l.add("exit:" + span.Metadata().Name)
}

func (l *recordingLayer) OnClose(id ID, ctx Context) {
	span, _ := ctx.Span(id)
	l.add("close:" + span.Metadata().Name)
}

func (l *recordingLayer) OnEvent(ev *Event, ctx Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func TestDispatcherLifecycleOrder(t *testing.T) {
	rec := &recordingLayer{}
	d := NewDispatcher(WithLayer(rec))
	tr := d.Target("app")

	span := tr.Span("update", Int("n", 1))
	span.Enter()
	span.Record(String("phase", "late"))
	span.Exit()
	span.Close()

	assert.Equal(t, []string{
		"new:update", "enter:update", "record:update", "exit:update", "close:update",
	}, rec.calls)
	assert.Equal(t, 0, d.LiveSpans(), "closed span should leave the registry")
}

func TestDispatcherLayersNotifiedInOrder(t *testing.T) {
	var order []string
	first := &orderLayer{name: "first", out: &order}
	second := &orderLayer{name: "second", out: &order}
	d := NewDispatcher(WithLayer(first), WithLayer(second))

	d.Target("app").Span("s").Enter().Exit()

	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

type orderLayer struct {
	BaseLayer
	name string
	out  *[]string
}

func (l *orderLayer) OnEnter(ID, Context) { *l.out = append(*l.out, l.name) }
func (l *orderLayer) OnExit(ID, Context)  { *l.out = append(*l.out, l.name) }

func TestDispatcherReusesClosedIDs(t *testing.T) {
	d := NewDispatcher()
	tr := d.Target("app")

	a := tr.Span("a")
	b := tr.Span("b")
	require.NotEqual(t, a.ID(), b.ID(), "live spans must have distinct ids")
	require.NotZero(t, a.ID())

	oldID := a.ID()
	a.Close()
	c := tr.Span("c")
	assert.Equal(t, oldID, c.ID(), "closed id should be reused")
	assert.Equal(t, 2, d.LiveSpans())
}

func TestDispatcherFilteredSpanIsDisabled(t *testing.T) {
	rec := &recordingLayer{}
	d := NewDispatcher(
		WithFilter(FilterFunc(func(m *Metadata) bool { return m.Level >= zapcore.WarnLevel })),
		WithLayer(rec),
	)
	tr := d.Target("app")

	span := tr.Span("quiet")
	assert.True(t, span.IsDisabled())
	assert.Zero(t, span.ID())

	span.Enter()
	span.Record(Int("x", 1))
	span.Exit()
	span.Close()
	tr.Info("dropped")

	assert.Empty(t, rec.calls, "disabled span must not notify layers")
	assert.Empty(t, rec.events)
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	rec := &recordingLayer{}
	d := NewDispatcher(WithLayer(rec))
	span := d.Target("app").Span("s")

	span.Close()
	span.Close()
	span.Enter()

	assert.Equal(t, []string{"new:s", "close:s"}, rec.calls)
}

func TestDispatcherEventParent(t *testing.T) {
	rec := &recordingLayer{}
	d := NewDispatcher(WithLayer(rec))
	tr := d.Target("app")

	tr.Info("outside")
	outer := tr.Span("outer").Enter()
	inner := tr.Span("inner").Enter()
	tr.Warn("inside", Int("k", 2))
	inner.Exit()
	tr.Info("after inner")
	outer.Exit()

	require.Len(t, rec.events, 3)
	assert.Equal(t, ID(0), rec.events[0].Parent)
	assert.Equal(t, inner.ID(), rec.events[1].Parent)
	assert.Equal(t, zapcore.WarnLevel, rec.events[1].Meta.Level)
	assert.Equal(t, KindEvent, rec.events[1].Meta.Kind)
	assert.Equal(t, outer.ID(), rec.events[2].Parent)
}

func TestDispatcherCurrentStackPerGoroutine(t *testing.T) {
	d := NewDispatcher()
	tr := d.Target("app")

	outer := tr.Span("outer").Enter()
	defer outer.Exit()

	var other []ID
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s := tr.Span("worker").Enter()
		other = d.currentSpans(Context{d: d}.Goroutine())
		s.Exit()
	}()
	wg.Wait()

	mine := d.currentSpans(Context{d: d}.Goroutine())
	assert.Equal(t, []ID{outer.ID()}, mine)
	require.Len(t, other, 1)
	assert.NotEqual(t, outer.ID(), other[0])
}

func TestDispatcherExitOutOfOrder(t *testing.T) {
	d := NewDispatcher()
	tr := d.Target("app")
	ctx := Context{d: d}

	a := tr.Span("a").Enter()
	b := tr.Span("b").Enter()
	a.Exit()
	assert.Equal(t, []ID{b.ID()}, ctx.CurrentSpans())
	b.Exit()
	assert.Empty(t, ctx.CurrentSpans())
}

func TestExtensions(t *testing.T) {
	d := NewDispatcher()
	span := d.Target("app").Span("s")

	ref, ok := d.span(span.ID())
	require.True(t, ok)

	type key struct{}
	ref.ExtensionsMut(func(ext Extensions) {
		ext.Insert(key{}, 42)
	})
	ref.Extensions(func(ext Extensions) {
		v, ok := ext.Get(key{})
		assert.True(t, ok)
		assert.Equal(t, 42, v)
	})
	ref.ExtensionsMut(func(ext Extensions) {
		v, ok := ext.Remove(key{})
		assert.True(t, ok)
		assert.Equal(t, 42, v)
		_, ok = ext.Remove(key{})
		assert.False(t, ok, "second remove should find nothing")
	})
}

func TestScopedDisabled(t *testing.T) {
	d := NewDispatcher(WithFilter(FilterFunc(func(*Metadata) bool { return false })))
	done := d.Target("app").Scoped("s")
	done()
	assert.Equal(t, 0, d.LiveSpans())
}

func TestInScope(t *testing.T) {
	rec := &recordingLayer{}
	d := NewDispatcher(WithLayer(rec))
	span := d.Target("app").Span("s")

	ran := false
	span.InScope(func() { ran = true })

	assert.True(t, ran)
	assert.Equal(t, []string{"new:s", "enter:s", "exit:s"}, rec.calls)
}

func TestDispatcherCloseExitsEnteredSpan(t *testing.T) {
	rec := &recordingLayer{}
	d := NewDispatcher(WithLayer(rec))
	tr := d.Target("app")
	ctx := Context{d: d}

	outer := tr.Span("outer").Enter()
	func() {
		inner := tr.Span("inner")
		defer inner.Enter().Exit()
		defer inner.Close()
	}()
	assert.Equal(t, []ID{outer.ID()}, ctx.CurrentSpans())
	outer.Exit()
	outer.Close()

	assert.Equal(t, []string{
		"new:outer", "enter:outer",
		"new:inner", "enter:inner", "exit:inner", "close:inner",
		"exit:outer", "close:outer",
	}, rec.calls)
	assert.Empty(t, ctx.CurrentSpans())
}

func TestDispatcherCloseLeavesOtherGoroutineEntry(t *testing.T) {
	rec := &recordingLayer{}
	d := NewDispatcher(WithLayer(rec))
	span := d.Target("app").Span("shared").Enter()

	done := make(chan struct{})
	go func() {
		defer close(done)
		span.Close()
	}()
	<-done

	assert.Equal(t, []string{"new:shared", "enter:shared", "close:shared"}, rec.calls)
}
