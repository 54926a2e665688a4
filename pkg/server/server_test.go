package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/config"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
	cfg    *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := config.DefaultConfig()
	cfg.GinMode = gin.TestMode
	cfg.JWTSecret = "test-jwt-secret"
	cfg.APIMasterSecret = "test-master-secret"
	require.NoError(t, auth.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword))

	return &testServer{t: t, router: New(cfg, db, nil), cfg: cfg}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(path, token, filename, content string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(s.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken
}

func (s *testServer) adminToken() string {
	return s.login(s.cfg.AdminUsername, s.cfg.AdminPassword)
}

// createEmployee adds an employee with a primary skill and returns its id
func (s *testServer) createEmployee(admin, username string, team int, hours float64, machine string) uint {
	s.t.Helper()
	w := s.do(http.MethodPost, "/admin/employees", admin, gin.H{
		"username": username, "email": username + "@shop.test", "password": "password123",
		"team_id": team, "hours_per_week": hours,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var emp database.Employee
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &emp))

	w = s.do(http.MethodPut, fmt.Sprintf("/admin/employees/%d/skills", emp.ID), admin, gin.H{
		"machine_type": machine, "skill_level": "primary",
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	return emp.ID
}

func (s *testServer) createProject(admin, number, machine, country string, hours float64) uint {
	s.t.Helper()
	start := time.Now().UTC().AddDate(0, 0, 14)
	w := s.do(http.MethodPost, "/admin/projects", admin, gin.H{
		"project_number": number, "model_type": machine, "customer_country": country,
		"estimated_hours":     hours,
		"assembly_start_date": start.Format("2006-01-02"),
		"deadline":            start.AddDate(0, 1, 0).Format("2006-01-02"),
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var p database.Project
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &p))
	return p.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestLoginAndRoleChecks(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/auth/login", "", gin.H{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/admin/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodGet, "/admin/projects", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	admin := s.adminToken()
	s.createEmployee(admin, "worker", 1, 40, "PAH")
	worker := s.login("worker", "password123")

	w = s.do(http.MethodGet, "/admin/projects", worker, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodGet, "/admin/projects", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/me/hold-reasons", worker, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < LoginAttempts; i++ {
		w := s.do(http.MethodPost, "/auth/login", "", gin.H{"username": "admin", "password": "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := s.do(http.MethodPost, "/auth/login", "", gin.H{"username": "admin", "password": "admin123"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAssignmentFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	ownerID := s.createEmployee(admin, "owner", 1, 40, "PAH")
	s.createEmployee(admin, "other", 3, 40, "PPH")
	projectID := s.createProject(admin, "P-100", "PAH", "Germany", 10)

	w := s.do(http.MethodGet, fmt.Sprintf("/admin/projects/%d/candidates", projectID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["candidates"], 1)

	w = s.do(http.MethodPost, fmt.Sprintf("/admin/projects/%d/auto-assign", projectID), admin, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		Assignment database.Assignment `json:"assignment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, ownerID, res.Assignment.EmployeeID)
	assignPath := fmt.Sprintf("/me/assignments/%d", res.Assignment.ID)

	w = s.do(http.MethodPost, fmt.Sprintf("/admin/projects/%d/assign", projectID), admin, gin.H{"employee_id": ownerID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode(t, w)["kind"])

	other := s.login("other", "password123")
	w = s.do(http.MethodPatch, assignPath+"/status", other, gin.H{"status": "in_progress"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodGet, assignPath, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	owner := s.login("owner", "password123")
	w = s.do(http.MethodPatch, assignPath+"/status", owner, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	details := decode(t, w)["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "status", details[0].(map[string]any)["field"])

	w = s.do(http.MethodPatch, assignPath+"/status", owner, gin.H{"status": "in_progress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPatch, assignPath+"/status", owner, gin.H{"status": "not_started"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPatch, assignPath+"/hours", owner, gin.H{"hours_remaining": 4})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, assignPath, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 6.0, decode(t, w)["hours_spent"])

	w = s.do(http.MethodGet, fmt.Sprintf("/admin/projects/%d", projectID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	project := decode(t, w)["project"].(map[string]any)
	assert.Equal(t, "in_progress", project["status"])

	w = s.do(http.MethodGet, "/admin/stats/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["active_projects"])
}

func TestAutoAssignWithoutCapacity(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.createEmployee(admin, "parttime", 1, 5, "PAH")
	projectID := s.createProject(admin, "P-200", "PAH", "USA", 10)

	w := s.do(http.MethodPost, fmt.Sprintf("/admin/projects/%d/auto-assign", projectID), admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/admin/projects/%d/candidates", projectID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["reasons"])
}

const importFile = "project_number,model_type,customer_country,estimated_hours,assembly_start_date,deadline\n" +
	"IMP-1,PAH,USA,8,2026-11-01,2026-11-20\n" +
	"IMP-2,REF,Canada,6,2026-11-01,2026-11-20\n" +
	"IMP-3,XYZ,Canada,6,2026-11-01,2026-11-20\n"

func TestAdminImport(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()

	w := s.upload("/admin/imports/projects/validate", admin, "projects.csv", importFile)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, 2.0, body["stats"].(map[string]any)["would_import"])

	w = s.upload("/admin/imports/projects", admin, "projects.csv", importFile)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, 2.0, body["imported"])
	assert.Len(t, body["errors"], 1)

	w = s.do(http.MethodGet, "/admin/projects", admin, nil)
	assert.Equal(t, 2.0, decode(t, w)["count"])

	w = s.upload("/admin/imports/widgets", admin, "w.csv", importFile)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntegrationKeyImportAndUsage(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()

	w := s.do(http.MethodPost, "/admin/keys", admin, gin.H{"name": "erp"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID  uint   `json:"id"`
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = s.upload("/api/import/projects", "erp.forged", "projects.csv", importFile)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.upload("/api/import/projects", created.Key, "projects.csv", importFile)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/usage", created.Key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	totals := decode(t, w)["totals"].(map[string]any)
	assert.Equal(t, 1.0, totals["requests"])
	assert.Equal(t, 2.0, totals["rows_imported"])
	assert.Equal(t, 1.0, totals["rows_rejected"])

	w = s.do(http.MethodPut, fmt.Sprintf("/admin/keys/%d", created.ID), admin, gin.H{"rate_limit": 1})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.upload("/api/import/projects", created.Key, "projects.csv", importFile)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(http.MethodDelete, fmt.Sprintf("/admin/keys/%d", created.ID), admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/usage", created.Key, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "revoked keys are not recreated on use")

	unregistered := auth.NewSigner(s.cfg.JWTSecret, s.cfg.APIMasterSecret).GenerateHMACKey("ghost")
	w = s.do(http.MethodGet, "/api/usage", unregistered, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFailedIntegrationImportsCountTowardLimit(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()

	w := s.do(http.MethodPost, "/admin/keys", admin, gin.H{"name": "mes", "rate_limit": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = s.upload("/api/import/widgets", created.Key, "w.csv", importFile)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload("/api/import/projects", created.Key, "projects.csv", importFile)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.createEmployee(admin, "pat", 2, 40, "PPH")
	pat := s.login("pat", "password123")

	w := s.do(http.MethodPost, "/me/password", pat, gin.H{"old_password": "nope", "new_password": "brand-new-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodPost, "/me/password", pat, gin.H{"old_password": "password123", "new_password": "brand-new-pass"})
	require.Equal(t, http.StatusOK, w.Code)

	s.login("pat", "brand-new-pass")
}

func TestTokensFollowAccountChanges(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	aliceID := s.createEmployee(admin, "alice", 1, 40, "PAH")
	bossID := s.createEmployee(admin, "boss", 1, 40, "PPH")

	w := s.do(http.MethodPatch, fmt.Sprintf("/admin/employees/%d", bossID), admin, gin.H{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	alice := s.login("alice", "password123")
	boss := s.login("boss", "password123")

	w = s.do(http.MethodGet, "/admin/projects", boss, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPatch, fmt.Sprintf("/admin/employees/%d", bossID), admin, gin.H{"role": "employee"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/admin/projects", boss, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "a demoted admin loses access before the token expires")

	w = s.do(http.MethodGet, "/me/assignments", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPut, fmt.Sprintf("/admin/employees/%d/active", aliceID), admin, gin.H{"active": false})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/me/assignments", alice, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateProfileAndEmployee(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.createEmployee(admin, "pat", 1, 40, "PAH")
	samID := s.createEmployee(admin, "sam", 1, 40, "REF")
	pat := s.login("pat", "password123")

	w := s.do(http.MethodPatch, "/me/profile", pat, gin.H{"hours_per_week": 20, "email": "Pat.New@Shop.Test"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 20.0, body["hours_per_week"])
	assert.Equal(t, "pat.new@shop.test", body["email"])
	assert.Equal(t, "employee", body["role"], "role is not editable through the profile")

	w = s.do(http.MethodPatch, "/me/profile", pat, gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPatch, "/me/profile", pat, gin.H{"hours_per_week": 120})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := fmt.Sprintf("/admin/employees/%d", samID)
	w = s.do(http.MethodPatch, path, admin, gin.H{"team_id": 2, "department_id": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, 2.0, body["team_id"])
	assert.Equal(t, 4.0, body["department_id"])

	w = s.do(http.MethodPatch, path, admin, gin.H{"email": "pat.new@shop.test"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(http.MethodPatch, path, admin, gin.H{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPatch, "/admin/employees/999", admin, gin.H{"team_id": 2})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodPatch, path, pat, gin.H{"team_id": 3})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReportsEndpoint(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()

	w := s.do(http.MethodGet, "/admin/stats/reports", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 0.0, body["completed_yesterday"])
	assert.Equal(t, 0.0, body["behind_schedule"])
	assert.NotEmpty(t, body["week_start"])
}
