package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	t.Run("x-forwarded-for takes the first hop", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1, 10.0.0.2")
		assert.Equal(t, "203.0.113.9", ClientIPFromRequest(r))
	})

	t.Run("x-real-ip is the fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Real-IP", "198.51.100.4")
		assert.Equal(t, "198.51.100.4", ClientIPFromRequest(r))
	})

	t.Run("remote addr strips the port", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.7:5412"
		assert.Equal(t, "192.0.2.7", ClientIPFromRequest(r))
	})

	t.Run("ipv6 remote addr strips brackets", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "[::1]:5412"
		assert.Equal(t, "::1", ClientIPFromRequest(r))
	})
}

func TestDeviceSummary(t *testing.T) {
	const firefoxLinux = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	assert.Equal(t, "Firefox 121.0 on Linux x86_64", DeviceSummary(firefoxLinux))

	assert.Empty(t, DeviceSummary(""))

	const bot = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	assert.Contains(t, DeviceSummary(bot), "(bot)")
}

func TestClientMetadataMiddleware(t *testing.T) {
	var gotIP, gotUA, gotDevice string
	handler := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = GetClientIP(r.Context())
		gotUA = GetUserAgent(r.Context())
		gotDevice = GetDevice(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.9", gotIP)
	assert.Contains(t, gotUA, "Firefox/121.0")
	assert.Equal(t, "Firefox 121.0 on Linux x86_64", gotDevice)
}

func TestGettersOnBareContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetClientIP(req.Context()))
	assert.Empty(t, GetUserAgent(req.Context()))
	assert.Empty(t, GetDevice(req.Context()))
}
