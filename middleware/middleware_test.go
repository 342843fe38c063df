package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGetTraceID(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "traceparent",
			headers: map[string]string{TraceParentHeader: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
			want:    "4bf92f3577b34da6a3ce929d0e0e4736",
		},
		{
			name:    "x-trace-id",
			headers: map[string]string{TraceIDHeader: "abc123"},
			want:    "abc123",
		},
		{
			name: "traceparent wins over x-trace-id",
			headers: map[string]string{
				TraceParentHeader: "00-11111111111111111111111111111111-00f067aa0ba902b7-01",
				TraceIDHeader:     "abc123",
			},
			want: "11111111111111111111111111111111",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			if got := GetTraceID(c); got != tt.want {
				t.Fatalf("GetTraceID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetTraceIDGenerates(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	got := GetTraceID(c)
	if len(got) != 32 {
		t.Fatalf("generated trace id %q has length %d, want 32", got, len(got))
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestRequireUser(t *testing.T) {
	buf := captureLogs(t)

	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/me", RequireUser(), func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("handler")
		c.String(http.StatusOK, UserID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header status = %d, want 401", w.Code)
	}

	buf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(UserIDHeader, "  alice ")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "alice" {
		t.Fatalf("status = %d body = %q", w.Code, w.Body.String())
	}

	var first map[string]any
	line := bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0]
	if err := json.Unmarshal(line, &first); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if first["message"] != "handler" || first["user_id"] != "alice" || first["trace_id"] == nil {
		t.Fatalf("handler log line = %v", first)
	}
}

func TestLoggingMiddlewareLevels(t *testing.T) {
	buf := captureLogs(t)

	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	r.GET("/nope", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	tests := []struct {
		path  string
		level string
	}{
		{"/health", "debug"},
		{"/boom", "error"},
		{"/nope", "warn"},
	}
	for _, tt := range tests {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set(TraceIDHeader, "trace-"+tt.level)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if got := w.Header().Get(TraceIDHeader); got != "trace-"+tt.level {
			t.Fatalf("%s: response trace id = %q", tt.path, got)
		}
		var entry map[string]any
		if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
			t.Fatalf("%s: decode %q: %v", tt.path, buf.String(), err)
		}
		if entry["level"] != tt.level || entry["route"] != tt.path {
			t.Fatalf("%s: entry = %v", tt.path, entry)
		}
	}
}

func TestPrometheusMiddlewareUsesRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(PrometheusMiddleware())
	r.GET("/users/:id/score", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/users/:id/score", "200")
	before := testutil.ToFloat64(counter)
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/"+id+"/score", nil))
	}
	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Fatalf("counter delta = %v, want 3", got)
	}

	unmatched := httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if got := testutil.ToFloat64(unmatched) - before; got != 1 {
		t.Fatalf("unmatched delta = %v, want 1", got)
	}
}
