package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	veilchat_errors "veilchat/pkg/errors"
)

func TestWriteErrorHidesStorageDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	writeError(c, errors.New(`pq: duplicate key value violates unique constraint "devices_pkey"`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "pq:") || strings.Contains(body, "devices_pkey") {
		t.Fatalf("driver error text reached the response: %s", body)
	}
	if !strings.Contains(body, "internal server error") {
		t.Fatalf("expected generic message, got: %s", body)
	}
	if !strings.Contains(body, "INTERNAL") {
		t.Fatalf("expected INTERNAL code, got: %s", body)
	}
}

func TestWriteErrorKeepsClassifiedMessages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	writeError(c, veilchat_errors.ErrForbidden)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "forbidden") || !strings.Contains(body, "FORBIDDEN") {
		t.Fatalf("unexpected body: %s", body)
	}
}
