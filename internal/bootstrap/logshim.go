package bootstrap

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrLoggerAlreadySet is returned when the legacy log shim was already installed.
var ErrLoggerAlreadySet = errors.New("legacy logger has already been set")

var (
	logShimInstalled atomic.Bool
	restoreStdLog    func()
)

// InstallLogShim routes the standard library logger and the logrus standard
// logger into logger. It succeeds once per process.
func InstallLogShim(logger *zap.Logger) error {
	if !logShimInstalled.CompareAndSwap(false, true) {
		return ErrLoggerAlreadySet
	}

	restoreStdLog = zap.RedirectStdLog(logger.With(zap.String("target", "log")))

	std := logrus.StandardLogger()
	std.SetOutput(io.Discard)
	std.SetLevel(logrus.TraceLevel)
	std.AddHook(NewLogrusHook(logger.With(zap.String("target", "logrus"))))
	return nil
}

// LogrusHook forwards logrus entries to a zap logger.
type LogrusHook struct {
	logger *zap.Logger
}

// NewLogrusHook creates a hook writing to logger.
func NewLogrusHook(logger *zap.Logger) *LogrusHook {
	return &LogrusHook{logger: logger}
}

// Levels implements logrus.Hook.
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	ce := h.logger.Check(zapLevel(entry.Level), entry.Message)
	if ce == nil {
		return nil
	}
	fields := make([]zap.Field, 0, len(entry.Data))
	for k, v := range entry.Data {
		fields = append(fields, zap.Any(k, v))
	}
	ce.Write(fields...)
	return nil
}

// zapLevel maps logrus levels; panic and fatal are logged as errors so the
// hook never terminates the process itself.
func zapLevel(l logrus.Level) zapcore.Level {
	switch l {
	case logrus.TraceLevel, logrus.DebugLevel:
		return zapcore.DebugLevel
	case logrus.InfoLevel:
		return zapcore.InfoLevel
	case logrus.WarnLevel:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
