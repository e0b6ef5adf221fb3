package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/pricebook/pkg/log/ctxlogger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// QueryLogger routes gorm statements to zap. Failed statements log at error,
// slow ones at warn and the rest at debug when the mode allows it. Bound
// values are never logged since usage and payment rows carry customer data.
type QueryLogger struct {
	base *zap.Logger
	mode gormlogger.LogLevel
	slow time.Duration
}

// NewQueryLogger returns a logger in Warn mode. A non-positive slow threshold
// falls back to 200ms.
func NewQueryLogger(base *zap.Logger, slow time.Duration) *QueryLogger {
	if base == nil {
		base = zap.NewNop()
	}
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	return &QueryLogger{base: base.Named("db"), mode: gormlogger.Warn, slow: slow}
}

func (l *QueryLogger) LogMode(mode gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.mode = mode
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	level, ok := l.levelFor(elapsed, err)
	if !ok {
		return
	}

	sql, rows := fc()
	op, table := describeSQL(sql)
	fields := []zap.Field{
		zap.String("db.operation", op),
		zap.String("db.table", table),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := ctxlogger.WithContext(ctx, l.base).Check(level, "db.query"); ce != nil {
		ce.Write(fields...)
	}
}

// ParamsFilter drops bound values.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) levelFor(elapsed time.Duration, err error) (zapcore.Level, bool) {
	switch {
	case l.mode <= gormlogger.Silent:
		return 0, false
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		// lookups by code and id miss routinely
		return 0, false
	case err != nil:
		return zapcore.ErrorLevel, l.mode >= gormlogger.Error
	case elapsed > l.slow:
		return zapcore.WarnLevel, l.mode >= gormlogger.Warn
	default:
		return zapcore.DebugLevel, l.mode >= gormlogger.Info
	}
}

func (l *QueryLogger) message(ctx context.Context, threshold gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.mode < threshold {
		return
	}
	if ce := ctxlogger.WithContext(ctx, l.base).Check(level, msg); ce != nil {
		ce.Write(zap.Any("data", data))
	}
}

// describeSQL returns the statement verb and the first table it touches.
func describeSQL(sql string) (string, string) {
	tokens := strings.Fields(sql)
	op, table := "UNKNOWN", ""
	for i, raw := range tokens {
		token := strings.ToUpper(strings.Trim(raw, "();"))
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			if op == "UNKNOWN" {
				op = token
			}
			if token == "UPDATE" && i+1 < len(tokens) && table == "" {
				table = cleanTable(tokens[i+1])
			}
		case "FROM", "INTO":
			if i+1 < len(tokens) && table == "" {
				table = cleanTable(tokens[i+1])
			}
		}
	}
	return op, table
}

func cleanTable(token string) string {
	return strings.Trim(token, "`\"();")
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
