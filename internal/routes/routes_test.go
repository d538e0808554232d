package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/config"
	"medexam-assistant-server/internal/his"
	"medexam-assistant-server/internal/models"
)

type stubHIS struct {
	sessionErr error
	updates    int
}

func (s *stubHIS) GetCurrentSession(ctx context.Context, forceRefresh bool) (*his.SessionResult, error) {
	if s.sessionErr != nil {
		return nil, s.sessionErr
	}
	return &his.SessionResult{
		Success: true,
		Data: &his.VisitContext{
			VisitID:     "V-5001",
			PatientInfo: map[string]any{"name": "Vo Thi K"},
		},
	}, nil
}

func (s *stubHIS) UpdateVisit(ctx context.Context, visitID string, payload his.MedicalPayload) (*his.UpdateResult, error) {
	s.updates++
	return &his.UpdateResult{Success: false, Error: "HIS offline"}, nil
}

func testConfig(authEnabled bool) *config.Config {
	return &config.Config{
		Environment:               "test",
		AuthEnabled:               authEnabled,
		JWTSecret:                 "access-secret",
		JWTRefreshSecret:          "refresh-secret",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
	}
}

func setupRouter(t *testing.T, cfg *config.Config, adapter his.Adapter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := models.InitDB(models.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	router := gin.New()
	SetupRoutes(router, db, cfg, adapter, zap.NewNop())
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealth(t *testing.T) {
	router := setupRouter(t, testConfig(false), &stubHIS{})

	w, body := doJSON(t, router, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", body["status"])
}

func TestCreateSession_RequiresPatientName(t *testing.T) {
	router := setupRouter(t, testConfig(false), &stubHIS{})

	w, body := doJSON(t, router, http.MethodPost, "/api/session/create", map[string]any{"visitId": "V-1"}, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Validation error", body["error"])
}

func TestGetSession_Unknown(t *testing.T) {
	router := setupRouter(t, testConfig(false), &stubHIS{})

	w, body := doJSON(t, router, http.MethodGet, "/api/session/unknown-id", nil, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Session not found", body["error"])
}

func TestGetSession_BlankID(t *testing.T) {
	router := setupRouter(t, testConfig(false), &stubHIS{})

	w, body := doJSON(t, router, http.MethodGet, "/api/session/", nil, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Session ID is required", body["error"])
}

func TestSessionLifecycle(t *testing.T) {
	stub := &stubHIS{}
	router := setupRouter(t, testConfig(false), stub)

	w, body := doJSON(t, router, http.MethodPost, "/api/session/create", map[string]any{
		"patientName": "Nguyen Van A",
		"visitId":     "V-5001",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	session := body["data"].(map[string]any)
	sessionID := session["id"].(string)
	assert.Equal(t, "active", session["status"])
	assert.Equal(t, "V-5001", session["visitId"])

	w, body = doJSON(t, router, http.MethodGet, "/api/session/"+sessionID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Nil(t, data["medicalRecord"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/session/"+sessionID+"/record", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = doJSON(t, router, http.MethodPut, "/api/session/"+sessionID+"/record", map[string]any{
		"assessment": "Viêm dạ dày",
		"icdCodes":   []string{"K29.7"},
		"status":     "draft",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "draft", body["data"].(map[string]any)["status"])

	w, body = doJSON(t, router, http.MethodPatch, "/api/session/"+sessionID+"/record", map[string]any{
		"status": "final",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	record := body["data"].(map[string]any)
	assert.Equal(t, "final", record["status"])
	assert.Equal(t, "sync_failed", record["syncStatus"])
	assert.Equal(t, "HIS offline", record["syncError"])
	assert.Equal(t, "Viêm dạ dày", record["assessment"])
	assert.Equal(t, 1, stub.updates)

	w, body = doJSON(t, router, http.MethodGet, "/api/session/"+sessionID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data = body["data"].(map[string]any)
	assert.Equal(t, "completed", data["session"].(map[string]any)["status"])
	assert.Equal(t, []any{"K29.7"}, data["medicalRecord"].(map[string]any)["icdCodes"])

	w, body = doJSON(t, router, http.MethodPut, "/api/session/"+sessionID+"/record", map[string]any{"status": "draft"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", body["error"])

	w, _ = doJSON(t, router, http.MethodPost, "/api/session/"+sessionID+"/record/sync", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, stub.updates)

	w, _ = doJSON(t, router, http.MethodPost, "/api/session/"+sessionID+"/cancel", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionStatusAndCancel(t *testing.T) {
	router := setupRouter(t, testConfig(false), &stubHIS{})

	_, body := doJSON(t, router, http.MethodPost, "/api/session/create", map[string]any{"patientName": "B"}, "")
	sessionID := body["data"].(map[string]any)["id"].(string)

	w, body := doJSON(t, router, http.MethodPost, "/api/session/"+sessionID+"/cancel", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", body["data"].(map[string]any)["status"])

	w, body = doJSON(t, router, http.MethodPatch, "/api/session/"+sessionID+"/status", map[string]any{"status": "bogus"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation error", body["error"])

	w, body = doJSON(t, router, http.MethodPatch, "/api/session/"+sessionID+"/status", map[string]any{"status": "completed"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["data"].(map[string]any)["status"])

	w, _ = doJSON(t, router, http.MethodPut, "/api/session/missing/record", map[string]any{"status": "draft"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatientRoutes(t *testing.T) {
	router := setupRouter(t, testConfig(false), &stubHIS{})
	year := time.Now().Year()

	w, body := doJSON(t, router, http.MethodPost, "/api/patients", map[string]any{
		"name":        "Nguyen Van A",
		"phoneNumber": "0900000001",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	patient := body["data"].(map[string]any)
	displayID := patient["displayId"].(string)
	assert.Equal(t, fmt.Sprintf("BN-%d-000001", year), displayID)

	w, body = doJSON(t, router, http.MethodPost, "/api/patients", map[string]any{
		"name":        "Nguyen Van B",
		"phoneNumber": "0900000001",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "POSSIBLE_DUPLICATE", body["error"])
	assert.Len(t, body["duplicates"], 1)

	w, body = doJSON(t, router, http.MethodPost, "/api/patients/force", map[string]any{
		"name":        "Nguyen Van B",
		"phoneNumber": "0900000001",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, fmt.Sprintf("BN-%d-000002", year), body["data"].(map[string]any)["displayId"])

	w, body = doJSON(t, router, http.MethodPost, "/api/patients/duplicates", map[string]any{"phoneNumber": "0900000001"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)

	w, _ = doJSON(t, router, http.MethodPost, "/api/patients", map[string]any{"phoneNumber": "0911"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = doJSON(t, router, http.MethodGet, "/api/patients?q=Van%20B", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := body["data"].(map[string]any)
	assert.Equal(t, float64(1), page["total"])

	w, body = doJSON(t, router, http.MethodGet, "/api/patients?page=1&limit=1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page = body["data"].(map[string]any)
	assert.Equal(t, float64(2), page["total"])
	assert.Equal(t, float64(2), page["pages"])

	w, body = doJSON(t, router, http.MethodGet, "/api/patients/display/"+displayID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	patientID := body["data"].(map[string]any)["id"].(string)

	w, body = doJSON(t, router, http.MethodPatch, "/api/patients/"+patientID, map[string]any{"bloodType": "A+"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A+", body["data"].(map[string]any)["bloodType"])

	w, body = doJSON(t, router, http.MethodGet, "/api/patients/pat_missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Patient not found", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/patients/export", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.NotZero(t, rec.Body.Len())
}

func TestDashboardStats(t *testing.T) {
	router := setupRouter(t, testConfig(false), &stubHIS{})

	_, _ = doJSON(t, router, http.MethodPost, "/api/session/create", map[string]any{"patientName": "A"}, "")

	w, body := doJSON(t, router, http.MethodGet, "/api/dashboard/stats", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["today"].(map[string]any)["totalSessions"])
	assert.Equal(t, float64(1), stats["total"].(map[string]any)["sessions"])
	recent := body["recentSessions"].([]any)
	require.Len(t, recent, 1)
	assert.Equal(t, "N/A", recent[0].(map[string]any)["patientDisplayId"])
}

func TestHISCurrentSession(t *testing.T) {
	router := setupRouter(t, testConfig(false), &stubHIS{})
	w, body := doJSON(t, router, http.MethodGet, "/api/his/current-session?refresh=true", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "V-5001", body["data"].(map[string]any)["visitId"])

	failing := setupRouter(t, testConfig(false), &stubHIS{sessionErr: errors.New("dial tcp: refused")})
	w, body = doJSON(t, failing, http.MethodGet, "/api/his/current-session", nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestAuthFlow(t *testing.T) {
	router := setupRouter(t, testConfig(true), &stubHIS{})

	w, _ := doJSON(t, router, http.MethodGet, "/api/dashboard/stats", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := doJSON(t, router, http.MethodPost, "/api/auth/register", map[string]any{
		"fullName": "Bs. Tran Van T",
		"email":    "doctor@clinic.vn",
		"password": "s3cret-pass",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "doctor", body["data"].(map[string]any)["role"])

	w, _ = doJSON(t, router, http.MethodPost, "/api/auth/register", map[string]any{
		"fullName": "Dup",
		"email":    "doctor@clinic.vn",
		"password": "s3cret-pass",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "doctor@clinic.vn",
		"password": "wrong-pass",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "doctor@clinic.vn",
		"password": "s3cret-pass",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	tokens := body["data"].(map[string]any)
	accessToken := tokens["accessToken"].(string)
	refreshToken := tokens["refreshToken"].(string)

	w, _ = doJSON(t, router, http.MethodGet, "/api/dashboard/stats", nil, accessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/patients/force", map[string]any{"name": "C"}, accessToken)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, body = doJSON(t, router, http.MethodGet, "/api/auth/profile", nil, accessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bs. Tran Van T", body["data"].(map[string]any)["fullName"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/users", nil, accessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = doJSON(t, router, http.MethodPost, "/api/auth/refresh-token", map[string]any{"refreshToken": refreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code)
	rotated := body["data"].(map[string]any)["refreshToken"].(string)

	// The rotated-out token is revoked.
	w, _ = doJSON(t, router, http.MethodPost, "/api/auth/refresh-token", map[string]any{"refreshToken": refreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/auth/logout", map[string]any{"refreshToken": rotated}, accessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/auth/refresh-token", map[string]any{"refreshToken": rotated}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
