package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "request_id"
	transactionIDKey ctxKey = "transaction_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTransactionID tags every log line written through FromCtx with the
// payment transaction being processed.
func WithTransactionID(ctx context.Context, transactionID string) context.Context {
	return context.WithValue(ctx, transactionIDKey, transactionID)
}

func TransactionIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(transactionIDKey).(string); ok {
		return v
	}
	return ""
}

// FromCtx returns logger with request_id and transaction_id automatically added
func FromCtx(ctx context.Context) *zap.Logger {
	l := L()
	if reqID := RequestIDFrom(ctx); reqID != "" {
		l = l.With(zap.String("request_id", reqID))
	}
	if txID := TransactionIDFrom(ctx); txID != "" {
		l = l.With(zap.String("transaction_id", txID))
	}
	return l
}
