package logtrace

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxRequestIdKeyType string

const ctxRequestIdKey ctxRequestIdKeyType = "SiteStoreRequestId"

// SetRequestIdInContext stores a correlation id and attaches it to the context logger.
func SetRequestIdInContext(ctx context.Context, requestId string) context.Context {
	ctx = context.WithValue(ctx, ctxRequestIdKey, requestId)
	l := loggerFromContext(ctx).With().Str("request_id", requestId).Logger()
	return l.WithContext(ctx)
}

func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(ctxRequestIdKey).(string)
	if !ok {
		return ""
	}
	return r
}

// loggerFromContext returns the logger attached to ctx, or the global logger when none is.
func loggerFromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != zerolog.Ctx(context.Background()) {
		return l
	}
	return &log.Logger
}
