// Package log 是基于 zap 的全局日志门面。
package log

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init 之前使用 Nop logger，库代码和测试不会因未初始化而 panic。
var sugar = zap.NewNop().Sugar()

// Init 初始化 zap logger。format 为 console 时输出彩色文本，否则输出 JSON。
func Init(level, format, outputPath string) {
	logger, err := buildConfig(level, format, outputPath).Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	sugar = logger.Sugar()
}

func buildConfig(level, format, outputPath string) zap.Config {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Encoding = "console"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = logLevel
	cfg.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		_ = os.MkdirAll(outputPath, os.ModePerm)
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(outputPath, "app.log"))
	}
	return cfg
}

// traceFields 在 ctx 携带有效 span 时返回 trace_id / span_id 键值对。
func traceFields(ctx context.Context, keysAndValues []interface{}) []interface{} {
	if ctx == nil {
		return keysAndValues
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return keysAndValues
	}
	return append(keysAndValues, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

func Info(msg string) {
	sugar.Info(msg)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 记录结构化 info 日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

// InfowCtx 同 Infow，并附带 ctx 中的追踪标识。
func InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, traceFields(ctx, keysAndValues)...)
}

func Debugf(template string, args ...interface{}) {
	sugar.Debugf(template, args...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error 记录一条 error 级别的日志，并附带 error 信息
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// ErrorwCtx 同 Errorw，并附带 ctx 中的追踪标识。
func ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, traceFields(ctx, keysAndValues)...)
}

// Fatal 记录日志后退出进程。
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 将缓冲区中的日志刷新到底层 Writer。
func Sync() {
	_ = sugar.Sync()
}
