package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/document-analyzer/api/handlers"
	"github.com/feichai0017/document-analyzer/pkg/logger"
)

func newEngine(opts Options) (*gin.Engine, *logger.TestLogger) {
	gin.SetMode(gin.TestMode)
	log := logger.NewTestLogger()
	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(nil, nil, log), log, opts)
	return r, log
}

func TestHealthRouteAndRequestLog(t *testing.T) {
	r, log := newEngine(Options{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, log.Messages("INFO"), "Request handled")
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newEngine(Options{AllowOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents/process", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploadLimit(t *testing.T) {
	r, _ := newEngine(Options{MaxUploadSize: 16})

	body := "--x\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.pdf\"\r\n\r\n" + strings.Repeat("a", 64) + "\r\n--x--\r\n"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/process", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
