package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rustyeddy/tradeassist/trace"
)

// Config holds logging configuration.
type Config struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json or console
}

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// New builds a zap logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// Init builds a logger and installs it as the package logger.
func Init(cfg Config) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	Set(l)
	return l, nil
}

func Set(l *zap.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// L returns the package logger. It discards everything until Init or Set.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Sync() {
	_ = L().Sync()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Ctx returns l with the trace and span ids of ctx attached.
func Ctx(ctx context.Context, l *zap.Logger) *zap.Logger {
	if traceID, spanID, ok := trace.GetTraceFields(ctx); ok {
		return l.With(zap.String("trace_id", traceID), zap.String("span_id", spanID))
	}
	return l
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Ctx(ctx, L()).Debug(msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Ctx(ctx, L()).Info(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Ctx(ctx, L()).Warn(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Ctx(ctx, L()).Error(msg, fields...)
}

// ErrorWithErr logs err and marks the active span as failed.
func ErrorWithErr(ctx context.Context, msg string, err error, fields ...zap.Field) {
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	Ctx(ctx, L()).Error(msg, append([]zap.Field{zap.Error(err)}, fields...)...)
}

// Trade logs an order fill.
func Trade(ctx context.Context, symbol, side string, qty, price decimal.Decimal, orderID string, fields ...zap.Field) {
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("trade_executed", oteltrace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("side", side),
			attribute.String("quantity", qty.String()),
			attribute.String("price", price.String()),
			attribute.String("order_id", orderID),
		))
	}
	Ctx(ctx, L()).Info("trade executed", append([]zap.Field{
		zap.String("type", "TRADE"),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.String("quantity", qty.String()),
		zap.String("price", price.String()),
		zap.String("order_id", orderID),
	}, fields...)...)
}

// Risk logs a risk management event such as a hard override or a blocked
// trade.
func Risk(ctx context.Context, symbol, eventType string, fields ...zap.Field) {
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("risk_event", oteltrace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("event_type", eventType),
		))
	}
	Ctx(ctx, L()).Warn("risk event", append([]zap.Field{
		zap.String("type", "RISK"),
		zap.String("symbol", symbol),
		zap.String("event_type", eventType),
	}, fields...)...)
}

// Decision logs what the position machine decided for a symbol.
func Decision(ctx context.Context, symbol, action, reason string, fields ...zap.Field) {
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("position_decision", oteltrace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("action", action),
			attribute.String("reason", reason),
		))
	}
	Ctx(ctx, L()).Info("position decision", append([]zap.Field{
		zap.String("type", "DECISION"),
		zap.String("symbol", symbol),
		zap.String("action", action),
		zap.String("reason", reason),
	}, fields...)...)
}
