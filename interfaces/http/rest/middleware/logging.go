package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"stackture/pkg/common"
)

// Logger logs one line per request, including the caller when the request
// reached authentication
func Logger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, caller := common.WithCallerSlot(r.Context())

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			}
			if caller.UserID != "" {
				fields = append(fields,
					zap.String("userID", caller.UserID),
					zap.String("authVia", caller.Via),
				)
			}

			switch {
			case ww.Status() >= http.StatusInternalServerError:
				logger.Error("HTTP request failed", fields...)
			case ww.Status() >= http.StatusBadRequest:
				logger.Info("HTTP request rejected", fields...)
			default:
				logger.Debug("HTTP request", fields...)
			}
		})
	}
}
