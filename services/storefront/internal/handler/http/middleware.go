package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/httputil"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/middleware"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/validator"
)

// RequireDevice rejects requests without a well-formed X-Device-ID header and
// stores the device ID in the request context.
func RequireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(r.Header.Get(middleware.DeviceIDHeader))
		if err := validator.ValidateVar(middleware.DeviceIDHeader, deviceID, "required,deviceid"); err != nil {
			httputil.WriteError(w, r, err, nil)
			return
		}
		ctx := logger.WithDeviceID(r.Context(), deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceIDFromContext(ctx context.Context) string {
	return logger.DeviceIDFromContext(ctx)
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
