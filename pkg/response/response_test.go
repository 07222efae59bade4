package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/crewline/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Success(ctx, http.StatusCreated, gin.H{"message": "ok"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}
	resp := decode(t, rec)
	if !resp.Success || resp.Error != nil {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestSuccessWithMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	SuccessWithMeta(ctx, http.StatusOK, []string{"a", "b"}, &Meta{Total: 2})

	resp := decode(t, rec)
	if resp.Meta == nil || resp.Meta.Total != 2 {
		t.Fatal("expected metadata to be serialised")
	}
}

func TestErrorWithAppErrorKeepsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Error(ctx, appErrors.New("INVITATION_EXPIRED", "Invitation has expired", http.StatusBadRequest))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
	resp := decode(t, rec)
	if resp.Success {
		t.Fatal("expected success to be false")
	}
	if resp.Error == nil || resp.Error.Code != "INVITATION_EXPIRED" || resp.Error.Message != "Invitation has expired" {
		t.Fatalf("unexpected error info: %+v", resp.Error)
	}
}

func TestErrorWithGenericErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/team/members", nil)

	Error(ctx, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d got %d", http.StatusInternalServerError, rec.Code)
	}
	resp := decode(t, rec)
	if resp.Error == nil || resp.Error.Message != appErrors.ErrInternalServer.Message {
		t.Fatalf("expected generic message, got %+v", resp.Error)
	}
}
