package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BerylCAtieno/iac-workitem-api/internal/config"
	"github.com/BerylCAtieno/iac-workitem-api/internal/handlers"
	"github.com/BerylCAtieno/iac-workitem-api/internal/repository"
	"github.com/BerylCAtieno/iac-workitem-api/internal/services"
	"github.com/BerylCAtieno/iac-workitem-api/internal/storage"
	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"
)

// nilRepository panics if called; the routes exercised here never reach it.
type nilRepository struct {
	repository.Repository
}

func newTestRouter(enabled bool) http.Handler {
	cfg := &config.Config{
		StorageEnabled:       enabled,
		TokenLimit:           100,
		MaxFileSize:          1 << 20,
		MaxTotalUnpackedSize: 1 << 20,
		MaxSupportingDocSize: 1 << 10,
	}
	logger := utils.NewLoggerWithWriter(io.Discard, "error")
	svc := services.NewService(nilRepository{}, storage.NewMemoryStorage(), cfg, logger)
	return NewRouter(svc, cfg, logger)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s", rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("request id header missing")
	}
}

func TestDisabledStorageReturnsServiceUnavailable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/work-items", nil)
	req.Header.Set(handlers.UserEmailHeader, "dev@example.com")
	rec := httptest.NewRecorder()
	newTestRouter(false).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestPreflightIsAnsweredBeforeRouting(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(true).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/work-items/abc", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestUnknownMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(true).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/health", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
