package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	accessdomain "support-access-plane/internal/access/domain"
	accesshandler "support-access-plane/internal/access/handler"
	accessrepo "support-access-plane/internal/access/repository"
	accessservice "support-access-plane/internal/access/service"
	"support-access-plane/internal/audit"
	auditdomain "support-access-plane/internal/audit/domain"
	healthhandler "support-access-plane/internal/health/handler"
	identityhandler "support-access-plane/internal/identity/handler"
	identityservice "support-access-plane/internal/identity/service"
	"support-access-plane/internal/policy/engine"
	"support-access-plane/internal/security"
	"support-access-plane/internal/server"
	"support-access-plane/internal/server/middleware"
	userdomain "support-access-plane/internal/user/domain"
)

type mockSessionRepo struct {
	sessions map[string]*accessdomain.Session
}

func (m *mockSessionRepo) Create(ctx context.Context, s *accessdomain.Session) error {
	for _, existing := range m.sessions {
		if existing.AdminID == s.AdminID && existing.TargetID == s.TargetID && existing.Status == accessdomain.StatusActive {
			return accessrepo.ErrDuplicateActive
		}
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*accessdomain.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*accessdomain.Session, error) {
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSessionRepo) FindActiveByAdminAndTarget(ctx context.Context, adminID, targetID string) (*accessdomain.Session, error) {
	for _, s := range m.sessions {
		if s.AdminID == adminID && s.TargetID == targetID && s.Status == accessdomain.StatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSessionRepo) ListActiveByAdmin(ctx context.Context, adminID string, now time.Time) ([]*accessdomain.Session, error) {
	var out []*accessdomain.Session
	for _, s := range m.sessions {
		if s.AdminID == adminID && s.Status == accessdomain.StatusActive && !s.ExpiresAt.Before(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) MarkExpired(ctx context.Context, id string, endedAt time.Time) error {
	if s, ok := m.sessions[id]; ok && s.Status == accessdomain.StatusActive {
		s.Status = accessdomain.StatusExpired
		s.EndedAt = &endedAt
	}
	return nil
}

func (m *mockSessionRepo) End(ctx context.Context, id string, status accessdomain.Status, endedAt time.Time) error {
	if s, ok := m.sessions[id]; ok && s.Status == accessdomain.StatusActive {
		s.Status = status
		s.EndedAt = &endedAt
	}
	return nil
}

type mockUserRepo struct {
	users map[string]*userdomain.User
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

type mockAuditRepo struct {
	entries []*auditdomain.Entry
}

func (m *mockAuditRepo) Create(ctx context.Context, e *auditdomain.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListBySession(ctx context.Context, sessionID string) ([]*auditdomain.Entry, error) {
	var out []*auditdomain.Entry
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type apiFixture struct {
	router    http.Handler
	tokens    *security.TokenProvider
	sessions  *mockSessionRepo
	auditRepo *mockAuditRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	evaluator, err := engine.NewOPAEvaluator(context.Background())
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}

	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte("password123!"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := &mockUserRepo{users: map[string]*userdomain.User{
		"admin-1": {ID: "admin-1", Email: "admin@example.com", Name: "Admin", Role: userdomain.RoleAdmin, Status: userdomain.UserStatusActive, PasswordHash: hash},
		"admin-2": {ID: "admin-2", Email: "admin2@example.com", Role: userdomain.RoleAdmin, Status: userdomain.UserStatusActive},
		"user-a":  {ID: "user-a", Email: "a@example.com", Name: "User A", Role: userdomain.RoleMember, Status: userdomain.UserStatusActive},
	}}
	sessions := &mockSessionRepo{sessions: make(map[string]*accessdomain.Session)}
	auditRepo := &mockAuditRepo{}
	recorder := audit.NewRecorder(auditRepo, middleware.ClientIPFromContext, middleware.UserAgentFromContext)
	manager := accessservice.NewManager(sessions, users, evaluator, recorder)

	router := server.NewRouter(server.Deps{
		Tokens:   tokens,
		Access:   accesshandler.NewHandler(manager, users),
		Identity: identityhandler.NewHandler(identityservice.NewAuthService(users, hasher, tokens)),
		Health:   healthhandler.NewHandler(nil),
	})
	return &apiFixture{router: router, tokens: tokens, sessions: sessions, auditRepo: auditRepo}
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) adminToken(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := f.tokens.IssueAccess(userID)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return tok
}

func createSession(t *testing.T, f *apiFixture, bearer string) (sessionID, token string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/support-sessions", bearer,
		map[string]any{"target_id": "user-a", "reason": "billing issue", "duration_minutes": 30}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Session struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"session"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Session.ID, resp.Token
}

func TestCreateSession_HTTP(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.adminToken(t, "admin-1")

	id, token := createSession(t, f, bearer)
	if id == "" {
		t.Fatal("missing session id")
	}
	if len(token) != security.ScopedTokenLen {
		t.Errorf("token length = %d, want %d", len(token), security.ScopedTokenLen)
	}
}

func TestCreateSession_NoBearer(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/support-sessions", "",
		map[string]any{"target_id": "user-a", "reason": "r", "duration_minutes": 30}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCreateSession_InvalidDuration(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/support-sessions", f.adminToken(t, "admin-1"),
		map[string]any{"target_id": "user-a", "reason": "r", "duration_minutes": 5}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateSession_MemberCallerForbidden(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/support-sessions", f.adminToken(t, "user-a"),
		map[string]any{"target_id": "admin-1", "reason": "r", "duration_minutes": 30}, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestCreateSession_Conflict(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.adminToken(t, "admin-1")
	id, _ := createSession(t, f, bearer)

	rec := f.do(t, http.MethodPost, "/v1/support-sessions", bearer,
		map[string]any{"target_id": "user-a", "reason": "again", "duration_minutes": 30}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["existing_session_id"] != id {
		t.Errorf("existing_session_id = %q, want %q", resp["existing_session_id"], id)
	}
}

func TestListSessions_HTTP(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.adminToken(t, "admin-1")
	id, _ := createSession(t, f, bearer)

	rec := f.do(t, http.MethodGet, "/v1/support-sessions", bearer, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].ID != id {
		t.Errorf("sessions = %+v", resp.Sessions)
	}
}

func TestEndSession_HTTP(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.adminToken(t, "admin-1")
	id, _ := createSession(t, f, bearer)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/v1/support-sessions/%s/end", id), bearer,
		map[string]string{"reason": "completed"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body %s", rec.Code, rec.Body.String())
	}
	if got := f.sessions.sessions[id].Status; got != accessdomain.StatusCompleted {
		t.Errorf("status = %q, want completed", got)
	}
}

func TestEndSession_EmptyBody(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.adminToken(t, "admin-1")
	id, _ := createSession(t, f, bearer)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/v1/support-sessions/%s/end", id), bearer, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := f.sessions.sessions[id].Status; got != accessdomain.StatusCompleted {
		t.Errorf("status = %q, want completed on empty reason", got)
	}
}

func TestEndSession_WrongOwner(t *testing.T) {
	f := newAPIFixture(t)
	id, _ := createSession(t, f, f.adminToken(t, "admin-1"))

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/v1/support-sessions/%s/end", id), f.adminToken(t, "admin-2"), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/v1/support-sessions/no-such-id/end", f.adminToken(t, "admin-2"), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want the same 404", rec.Code)
	}
}

func TestListAuditLog_HTTP(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.adminToken(t, "admin-1")
	id, _ := createSession(t, f, bearer)
	f.do(t, http.MethodPost, fmt.Sprintf("/v1/support-sessions/%s/end", id), bearer, nil, nil)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/v1/support-sessions/%s/audit", id), bearer, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Entries []struct {
			ActionType string `json:"action_type"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries = %d, want started+ended", len(resp.Entries))
	}
	if resp.Entries[0].ActionType != auditdomain.ActionSupportAccessStarted ||
		resp.Entries[1].ActionType != auditdomain.ActionSupportAccessEnded {
		t.Errorf("entries = %+v", resp.Entries)
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/support-sessions/%s/audit", id), f.adminToken(t, "admin-2"), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign admin status = %d, want 404", rec.Code)
	}
}

func TestValidateToken_HTTP(t *testing.T) {
	f := newAPIFixture(t)
	id, token := createSession(t, f, f.adminToken(t, "admin-1"))

	rec := f.do(t, http.MethodPost, "/v1/support-tokens/validate", "", nil,
		map[string]string{"X-Support-Token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Valid     bool   `json:"valid"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid || resp.SessionID != id {
		t.Errorf("resp = %+v", resp)
	}

	rec = f.do(t, http.MethodPost, "/v1/support-tokens/validate", "",
		map[string]string{"token": security.NewScopedToken()}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var invalid struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &invalid); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if invalid.Valid {
		t.Error("unknown token must be invalid")
	}
}

func TestScopedUserView_HTTP(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.adminToken(t, "admin-1")
	id, token := createSession(t, f, bearer)

	rec := f.do(t, http.MethodGet, "/v1/scoped/users/user-a", "", nil,
		map[string]string{"X-Support-Token": token, "X-Forwarded-For": "203.0.113.7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "user-a" || resp.Email != "a@example.com" {
		t.Errorf("resp = %+v", resp)
	}

	last := f.auditRepo.entries[len(f.auditRepo.entries)-1]
	if last.ActionType != auditdomain.ActionUserViewed || last.SessionID != id {
		t.Errorf("audit entry = %+v", last)
	}
	if last.IPAddress != "203.0.113.7" {
		t.Errorf("audit ip = %q, want forwarded ip", last.IPAddress)
	}
}

func TestScopedUserView_TargetMismatch(t *testing.T) {
	f := newAPIFixture(t)
	_, token := createSession(t, f, f.adminToken(t, "admin-1"))

	rec := f.do(t, http.MethodGet, "/v1/scoped/users/admin-2", "", nil,
		map[string]string{"X-Support-Token": token})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestScopedUserView_AfterEnd(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.adminToken(t, "admin-1")
	id, token := createSession(t, f, bearer)
	f.do(t, http.MethodPost, fmt.Sprintf("/v1/support-sessions/%s/end", id), bearer, nil, nil)

	rec := f.do(t, http.MethodGet, "/v1/scoped/users/user-a", "", nil,
		map[string]string{"X-Support-Token": token})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 after end", rec.Code)
	}
}

func TestScopedUserView_MissingToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/v1/scoped/users/user-a", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_HTTP(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/login", "",
		map[string]string{"email": "admin@example.com", "password": "password123!"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" || resp.UserID != "admin-1" {
		t.Errorf("resp = %+v", resp)
	}

	rec = f.do(t, http.MethodPost, "/v1/login", "",
		map[string]string{"email": "admin@example.com", "password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rec.Code)
	}
}

func TestHealth_HTTP(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
