package bridge

import (
	"fmt"
	"testing"

	"github.com/deepaksharma/spanscope/internal/profiler"
	"github.com/deepaksharma/spanscope/internal/tracing"
)

func BenchmarkScopeLayer(b *testing.B) {
	benchmarks := []struct {
		name     string
		scopesOn bool
		depth    int
		fields   int
	}{
		{name: "ScopesOff_Flat", scopesOn: false, depth: 1},
		{name: "ScopesOn_Flat", scopesOn: true, depth: 1},
		{name: "ScopesOn_Flat_Fields", scopesOn: true, depth: 1, fields: 4},
		{name: "ScopesOn_Nested", scopesOn: true, depth: 8},
		{name: "ScopesOn_Nested_Fields", scopesOn: true, depth: 8, fields: 4},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			prev := profiler.AreScopesOn()
			profiler.SetScopesOn(bm.scopesOn)
			defer profiler.SetScopesOn(prev)

			g := profiler.NewGlobalProfiler()
			layer := NewScopeLayer().WithWriter(g.Writer())
			d := tracing.NewDispatcher(tracing.WithLayer(layer))
			tr := d.Target("bench")

			fields := make([]tracing.Field, bm.fields)
			for i := range fields {
				fields[i] = tracing.Int(fmt.Sprintf("f%d", i), i)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				nest(tr, bm.depth, fields)
				// Keep the stream bounded.
				if i%1000 == 999 {
					g.NewFrame()
				}
			}
		})
	}
}

func nest(tr tracing.Tracer, depth int, fields []tracing.Field) {
	if depth == 0 {
		return
	}
	defer tr.Scoped("level", fields...)()
	nest(tr, depth-1, fields)
}

func BenchmarkScopeLayerParallel(b *testing.B) {
	prev := profiler.AreScopesOn()
	profiler.SetScopesOn(true)
	defer profiler.SetScopesOn(prev)

	g := profiler.NewGlobalProfiler()
	layer := NewScopeLayer().WithWriter(g.Writer())
	d := tracing.NewDispatcher(tracing.WithLayer(layer))
	tr := d.Target("bench")

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			nest(tr, 4, nil)
		}
	})
	b.StopTimer()
	g.NewFrame()
}
