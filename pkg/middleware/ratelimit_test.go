package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
)

func limited(rps, burst int) http.Handler {
	store := newVisitorStore(rps, burst, time.Minute)
	return rateLimit(store, HeaderOrIP(DeviceIDHeader), logger.Discard())(okHandler())
}

func deviceRequest(device, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/storefront/cart", nil)
	req.RemoteAddr = remote
	if device != "" {
		req.Header.Set(DeviceIDHeader, device)
	}
	return req
}

func TestRateLimit_BurstThenRejected(t *testing.T) {
	handler := limited(1, 3)

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, deviceRequest("device-aaaa", "10.0.0.1:1234"))
		assert.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, deviceRequest("device-aaaa", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "RATE_LIMITED")
}

func TestRateLimit_DevicesIndependent(t *testing.T) {
	handler := limited(1, 1)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, deviceRequest("device-aaaa", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, rr.Code)

	// Same IP, different device.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, deviceRequest("device-bbbb", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimit_FallsBackToIP(t *testing.T) {
	handler := limited(1, 1)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, deviceRequest("", "10.0.0.9:1111"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, deviceRequest("", "10.0.0.9:2222"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestHeaderOrIP(t *testing.T) {
	key := HeaderOrIP(DeviceIDHeader)

	assert.Equal(t, "X-Device-ID:device-aaaa", key(deviceRequest("device-aaaa", "10.0.0.1:1")))
	assert.Equal(t, "ip:10.0.0.1", key(deviceRequest("", "10.0.0.1:1")))

	req := deviceRequest("", "10.0.0.1:1")
	req.Header.Set("X-Forwarded-For", "not-an-ip, 203.0.113.7, 10.0.0.2")
	assert.Equal(t, "ip:203.0.113.7", key(req))

	req = deviceRequest("", "10.0.0.1:1")
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "ip:198.51.100.4", key(req))
}

func TestVisitorStore_Cleanup(t *testing.T) {
	s := newVisitorStore(1, 1, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	s.limiter("stale")
	now = now.Add(45 * time.Second)
	s.limiter("fresh")
	now = now.Add(30 * time.Second)

	s.cleanup()
	assert.Equal(t, 1, s.len())

	lim := s.limiter("fresh")
	assert.NotNil(t, lim)
	assert.Equal(t, 1, s.len())
}
