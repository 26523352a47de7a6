package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// ActionLogger returns a child logger with action-context fields.
// Never pass an approval token here.
func ActionLogger(base *zap.Logger, actionID, tool, op string) *zap.Logger {
	return base.With(
		zap.String("action_id", actionID),
		zap.String("tool", tool),
		zap.String("op", op),
	)
}
