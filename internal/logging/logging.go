// Package logging builds the *zap.Logger every process kind shares,
// grounded in _examples/uhyunpark-hyperlicked/pkg/util/log.go's
// NewLogger/NewLoggerWithFile pair: a production JSON encoder with an
// ISO8601 timestamp, optionally teed to a file.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-only logger tagged with a "component" field (e.g.
// "platform", "seller", "buyer") so log lines from a multi-process demo
// run can be told apart when interleaved.
func New(component string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("component", component)), nil
}

// NewWithFile builds a logger that writes JSON lines to both stdout and
// logPath, for long-running replica/seller/buyer processes where a
// terminal scrollback isn't enough.
func NewWithFile(component, logPath string) (*zap.Logger, error) {
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), zap.InfoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), zap.InfoLevel),
	)
	return zap.New(core).With(zap.String("component", component)), nil
}
