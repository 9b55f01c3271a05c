//go:build js && wasm

package bootstrap

import (
	"fmt"
	"strings"
	"syscall/js"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deepaksharma/spanscope/internal/tracing"
)

// consoleLayer writes events to the browser console.
type consoleLayer struct {
	tracing.BaseLayer
	console js.Value
}

func outputLayer(*zap.Logger) tracing.Layer {
	return &consoleLayer{console: js.Global().Get("console")}
}

func (l *consoleLayer) OnEvent(ev *tracing.Event, ctx tracing.Context) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", strings.ToUpper(ev.Meta.Level.String()), ev.Meta.Target, ev.Message)
	var fields strings.Builder
	if (tracing.DefaultFields{}).FormatFields(&fields, ev.Fields) == nil && fields.Len() > 0 {
		b.WriteByte(' ')
		b.WriteString(fields.String())
	}
	l.console.Call(consoleMethod(ev.Meta.Level), b.String())
}

func consoleMethod(lvl zapcore.Level) string {
	switch {
	case lvl <= zapcore.DebugLevel:
		return "debug"
	case lvl == zapcore.InfoLevel:
		return "info"
	case lvl == zapcore.WarnLevel:
		return "warn"
	default:
		return "error"
	}
}

// platformPanicHook reports panics on the browser console, where stderr is
// easy to miss.
func platformPanicHook(prev PanicHook) PanicHook {
	console := js.Global().Get("console")
	return func(v any) {
		console.Call("error", fmt.Sprintf("panic: %v", v))
		prev(v)
	}
}
