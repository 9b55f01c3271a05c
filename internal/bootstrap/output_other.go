//go:build !(js && wasm)

package bootstrap

import (
	"go.uber.org/zap"

	"github.com/deepaksharma/spanscope/internal/tracing"
)

func outputLayer(logger *zap.Logger) tracing.Layer {
	return tracing.NewFmtLayer(logger)
}

func platformPanicHook(prev PanicHook) PanicHook {
	return prev
}
