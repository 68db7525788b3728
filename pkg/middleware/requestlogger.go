package middleware

import (
	"log/slog"
	"net/http"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
)

// DeviceIDHeader identifies the browser a cart belongs to.
const DeviceIDHeader = "X-Device-ID"

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation, user, device and trace identifiers. Handlers fetch it with
// logger.FromContext.
//
// Mount it after RequestLogging, Tracing and OptionalAuth so those values are
// already present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			if deviceID := r.Header.Get(DeviceIDHeader); deviceID != "" {
				ctx = logger.WithDeviceID(ctx, deviceID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
