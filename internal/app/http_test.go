package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"leaddesk/api/internal/authpw"
	"leaddesk/api/internal/config"
	"leaddesk/api/internal/store"
)

type fakeUserStore struct {
	users         map[string]store.User
	deleteUserErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]store.User)}
}

func (f *fakeUserStore) CreateUser(ctx context.Context, user store.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) ListUsers(ctx context.Context) ([]store.User, error) {
	items := make([]store.User, 0, len(f.users))
	for _, user := range f.users {
		items = append(items, user)
	}
	return items, nil
}

func (f *fakeUserStore) UpdateUser(ctx context.Context, user store.User) (bool, error) {
	existing, ok := f.users[user.ID]
	if !ok {
		return false, nil
	}
	if user.PasswordHash == "" {
		user.PasswordHash = existing.PasswordHash
	}
	f.users[user.ID] = user
	return true, nil
}

func (f *fakeUserStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	if f.deleteUserErr != nil {
		return false, f.deleteUserErr
	}
	if _, ok := f.users[id]; !ok {
		return false, nil
	}
	delete(f.users, id)
	return true, nil
}

func (f *fakeUserStore) CreateFirstAdmin(ctx context.Context, user store.User) (bool, error) {
	for _, existing := range f.users {
		if existing.Role == "admin" {
			return false, nil
		}
	}
	f.users[user.ID] = user
	return true, nil
}

func (f *fakeUserStore) AdminExists(ctx context.Context) (bool, error) {
	for _, user := range f.users {
		if user.Role == "admin" {
			return true, nil
		}
	}
	return false, nil
}

type httpTestEnv struct {
	server *httptest.Server
	svc    *Service
	users  *fakeUserStore
	leads  map[string]*store.Lead
}

// newHTTPTestEnv wires a stateful in-memory store behind the real handler
// stack so route tests exercise dispatch, session checks, and error mapping.
func newHTTPTestEnv(t *testing.T) *httpTestEnv {
	t.Helper()

	users := newFakeUserStore()
	leads := make(map[string]*store.Lead)

	fs := &fakeStore{
		getUserByID: users.GetUserByID,
		insertLead: func(ctx context.Context, lead store.Lead) error {
			stored := lead
			stored.Version = 1
			stored.UpdatedAt = time.Now()
			leads[lead.ID] = &stored
			return nil
		},
		getLead: func(ctx context.Context, id string) (store.Lead, error) {
			lead, ok := leads[id]
			if !ok {
				return store.Lead{}, sql.ErrNoRows
			}
			return *lead, nil
		},
		listLeads: func(ctx context.Context) ([]store.Lead, error) {
			items := make([]store.Lead, 0, len(leads))
			for _, lead := range leads {
				items = append(items, *lead)
			}
			return items, nil
		},
		saveLeadUpdate: func(ctx context.Context, lead store.Lead, expectedVersion int64, entries []store.HistoryEntry) (bool, error) {
			stored, ok := leads[lead.ID]
			if !ok || stored.Version != expectedVersion {
				return false, nil
			}
			next := lead
			next.Version = expectedVersion + 1
			next.StatusHistory = append(append([]store.HistoryEntry(nil), stored.StatusHistory...), entries...)
			next.EmailCampaigns = stored.EmailCampaigns
			leads[lead.ID] = &next
			return true, nil
		},
		deleteLead: func(ctx context.Context, id string) (bool, error) {
			if _, ok := leads[id]; !ok {
				return false, nil
			}
			delete(leads, id)
			return true, nil
		},
		updateHistory: func(ctx context.Context, leadID, historyID, description string) (bool, error) {
			lead, ok := leads[leadID]
			if !ok {
				return false, nil
			}
			for i := range lead.StatusHistory {
				if lead.StatusHistory[i].ID == historyID {
					lead.StatusHistory[i].Description = description
					return true, nil
				}
			}
			return false, nil
		},
		insertCampaign: func(ctx context.Context, entry store.CampaignEntry) error {
			lead := leads[entry.LeadID]
			lead.EmailCampaigns = append(lead.EmailCampaigns, entry)
			return nil
		},
		updateCampaign: func(ctx context.Context, entry store.CampaignEntry) (bool, error) {
			lead, ok := leads[entry.LeadID]
			if !ok {
				return false, nil
			}
			for i := range lead.EmailCampaigns {
				if lead.EmailCampaigns[i].ID == entry.ID {
					lead.EmailCampaigns[i] = entry
					return true, nil
				}
			}
			return false, nil
		},
		deleteCampaign: func(ctx context.Context, leadID, campaignID string) (bool, error) {
			lead, ok := leads[leadID]
			if !ok {
				return false, nil
			}
			for i := range lead.EmailCampaigns {
				if lead.EmailCampaigns[i].ID == campaignID {
					lead.EmailCampaigns = append(lead.EmailCampaigns[:i], lead.EmailCampaigns[i+1:]...)
					return true, nil
				}
			}
			return false, nil
		},
		usernamesByID: func(ctx context.Context, ids []string) (map[string]string, error) {
			names := make(map[string]string, len(ids))
			for _, id := range ids {
				if user, ok := users.users[id]; ok {
					names[id] = user.Username
				}
			}
			return names, nil
		},
	}

	svc := &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: &fakeSessions{},
		accounts: authpw.NewService(users),
	}

	httpServer := NewHTTPServer(svc, "*")
	server := httptest.NewServer(httpServer.Handler())
	t.Cleanup(server.Close)

	return &httpTestEnv{server: server, svc: svc, users: users, leads: leads}
}

func (env *httpTestEnv) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, env.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func (env *httpTestEnv) loginAs(t *testing.T, username, password, role string) string {
	t.Helper()
	if _, err := env.svc.accounts.CreateUser(context.Background(), username, password, role); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	session, err := env.svc.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return session.Token
}

func TestHealthEndpoint(t *testing.T) {
	env := newHTTPTestEnv(t)
	resp, payload := env.request(t, http.MethodGet, "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["ok"] != true {
		t.Fatalf("payload = %v", payload)
	}
}

// Readiness is unauthenticated, so a failing database check must report a
// fixed message rather than the driver error with host details.
func TestReadyEndpointHidesDatabaseDetail(t *testing.T) {
	fs := &fakeStore{ping: func(ctx context.Context) error {
		return errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
	}}
	server := httptest.NewServer(NewHTTPServer(newTestService(fs), "*").Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/ready")
	if err != nil {
		t.Fatalf("GET /api/ready: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	checks, _ := payload["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if database["error"] != "database unreachable" {
		t.Fatalf("database check error = %v", database["error"])
	}
}

func TestLeadRoutesRequireSession(t *testing.T) {
	env := newHTTPTestEnv(t)
	resp, payload := env.request(t, http.MethodGet, "/api/leads", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestAdminBootstrapFlow(t *testing.T) {
	env := newHTTPTestEnv(t)

	resp, payload := env.request(t, http.MethodGet, "/api/auth/check-admin", "", nil)
	if resp.StatusCode != http.StatusOK || payload["adminExists"] != false {
		t.Fatalf("check-admin before bootstrap: %d %v", resp.StatusCode, payload)
	}

	resp, payload = env.request(t, http.MethodPost, "/api/auth/register-admin", "", map[string]any{
		"username": "root", "password": "hunter22",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register-admin status = %d (%v)", resp.StatusCode, payload)
	}
	if payload["role"] != "admin" || payload["token"] == "" {
		t.Fatalf("register-admin payload = %v", payload)
	}

	resp, payload = env.request(t, http.MethodGet, "/api/auth/check-admin", "", nil)
	if payload["adminExists"] != true {
		t.Fatalf("check-admin after bootstrap: %v", payload)
	}

	resp, payload = env.request(t, http.MethodPost, "/api/auth/register-admin", "", map[string]any{
		"username": "another", "password": "hunter22",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second register-admin status = %d", resp.StatusCode)
	}

	resp, _ = env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "root", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", resp.StatusCode)
	}

	resp, payload = env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "root", "password": "hunter22",
	})
	if resp.StatusCode != http.StatusOK || payload["token"] == "" {
		t.Fatalf("login status = %d (%v)", resp.StatusCode, payload)
	}
}

func TestLeadLifecycleOverHTTP(t *testing.T) {
	env := newHTTPTestEnv(t)
	adminToken := env.loginAs(t, "boss", "hunter22", "admin")
	memberToken := env.loginAs(t, "casey", "hunter22", "member")

	resp, created := env.request(t, http.MethodPost, "/api/leads", adminToken, map[string]any{
		"schoolName":  "Oak",
		"email":       "oak@example.com",
		"address":     "12 Elm St",
		"phoneNumber": "555-0100",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create lead status = %d (%v)", resp.StatusCode, created)
	}
	leadID, _ := created["id"].(string)
	if leadID == "" {
		t.Fatalf("missing lead id: %v", created)
	}

	// Member cannot create.
	resp, _ = env.request(t, http.MethodPost, "/api/leads", memberToken, map[string]any{
		"schoolName": "Elm", "email": "e@example.com", "address": "1 St", "phoneNumber": "555",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member create status = %d", resp.StatusCode)
	}

	resp, updated := env.request(t, http.MethodPut, "/api/leads/"+leadID, adminToken, map[string]any{
		"schoolName": "Oak Academy",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d (%v)", resp.StatusCode, updated)
	}
	history, _ := updated["statusHistory"].([]any)
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %v", updated["statusHistory"])
	}
	entry := history[0].(map[string]any)
	want := `School name changed from "Oak" to "Oak Academy"`
	if entry["description"] != want {
		t.Fatalf("description = %v, want %s", entry["description"], want)
	}

	// History descriptions are editable in place.
	historyID, _ := entry["id"].(string)
	resp, edited := env.request(t, http.MethodPut, "/api/leads/"+leadID+"/history/"+historyID, adminToken, map[string]any{
		"description": "Renamed after the merger",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history edit status = %d (%v)", resp.StatusCode, edited)
	}
	editedHistory := edited["statusHistory"].([]any)[0].(map[string]any)
	if editedHistory["description"] != "Renamed after the merger" {
		t.Fatalf("edited description = %v", editedHistory["description"])
	}

	// Members cannot delete leads.
	resp, _ = env.request(t, http.MethodDelete, "/api/leads/"+leadID, memberToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member delete status = %d", resp.StatusCode)
	}

	resp, _ = env.request(t, http.MethodDelete, "/api/leads/"+leadID, adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin delete status = %d", resp.StatusCode)
	}

	resp, _ = env.request(t, http.MethodGet, "/api/leads/"+leadID, adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted lead fetch status = %d", resp.StatusCode)
	}
}

func TestCampaignRoutes(t *testing.T) {
	env := newHTTPTestEnv(t)
	adminToken := env.loginAs(t, "boss", "hunter22", "admin")

	_, created := env.request(t, http.MethodPost, "/api/leads", adminToken, map[string]any{
		"schoolName":  "Oak",
		"email":       "oak@example.com",
		"address":     "12 Elm St",
		"phoneNumber": "555-0100",
	})
	leadID := created["id"].(string)

	resp, payload := env.request(t, http.MethodPost, "/api/leads/"+leadID+"/campaigns", adminToken, map[string]any{
		"category": "Spam",
		"content":  "hello",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad category status = %d (%v)", resp.StatusCode, payload)
	}

	resp, payload = env.request(t, http.MethodPost, "/api/leads/"+leadID+"/campaigns", adminToken, map[string]any{
		"category": "Newsletter",
		"content":  "September updates",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add campaign status = %d (%v)", resp.StatusCode, payload)
	}
	campaigns, _ := payload["emailCampaigns"].([]any)
	if len(campaigns) != 1 {
		t.Fatalf("expected one campaign, got %v", payload["emailCampaigns"])
	}
	campaign := campaigns[0].(map[string]any)
	sender := campaign["sentBy"].(map[string]any)
	if sender["username"] != "boss" {
		t.Fatalf("sentBy defaults to actor, got %v", sender)
	}

	campaignID := campaign["id"].(string)
	resp, payload = env.request(t, http.MethodPut, "/api/leads/"+leadID+"/campaigns/"+campaignID, adminToken, map[string]any{
		"content": "Revised newsletter",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update campaign status = %d (%v)", resp.StatusCode, payload)
	}
	revised := payload["emailCampaigns"].([]any)[0].(map[string]any)
	if revised["content"] != "Revised newsletter" || revised["category"] != "Newsletter" {
		t.Fatalf("partial update result = %v", revised)
	}

	resp, payload = env.request(t, http.MethodDelete, "/api/leads/"+leadID+"/campaigns/"+campaignID, adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete campaign status = %d (%v)", resp.StatusCode, payload)
	}
	if remaining, _ := payload["emailCampaigns"].([]any); len(remaining) != 0 {
		t.Fatalf("campaign not removed: %v", payload["emailCampaigns"])
	}
}

func TestUserManagementRoutes(t *testing.T) {
	env := newHTTPTestEnv(t)
	adminToken := env.loginAs(t, "boss", "hunter22", "admin")
	memberToken := env.loginAs(t, "casey", "hunter22", "member")

	resp, _ := env.request(t, http.MethodGet, "/api/users", memberToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member list users status = %d", resp.StatusCode)
	}

	resp, payload := env.request(t, http.MethodGet, "/api/users/public", memberToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public users status = %d", resp.StatusCode)
	}
	if items, _ := payload["users"].([]any); len(items) != 2 {
		t.Fatalf("public users = %v", payload["users"])
	}

	resp, payload = env.request(t, http.MethodPost, "/api/users", adminToken, map[string]any{
		"username": "newbie", "password": "hunter22", "role": "member",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user status = %d (%v)", resp.StatusCode, payload)
	}

	resp, payload = env.request(t, http.MethodPost, "/api/users", adminToken, map[string]any{
		"username": "newbie", "password": "hunter22", "role": "member",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate username status = %d (%v)", resp.StatusCode, payload)
	}

	resp, payload = env.request(t, http.MethodPost, "/api/users", adminToken, map[string]any{
		"username": "weird", "password": "hunter22", "role": "superuser",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad role status = %d (%v)", resp.StatusCode, payload)
	}
}

// A user that ever sent a campaign is pinned by the sent_by foreign key.
// Postgres rejects the delete with SQLSTATE 23503; the API must surface that
// as a conflict instead of a generic server error.
func TestDeleteUserReferencedByCampaignsConflicts(t *testing.T) {
	env := newHTTPTestEnv(t)
	adminToken := env.loginAs(t, "boss", "hunter22", "admin")

	sender, err := env.svc.accounts.CreateUser(context.Background(), "casey", "hunter22", "member")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	env.users.deleteUserErr = &pgconn.PgError{
		Code:           "23503",
		ConstraintName: "lead_campaigns_sent_by_fkey",
	}

	resp, payload := env.request(t, http.MethodDelete, "/api/users/"+sender.ID, adminToken, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete referenced user status = %d (%v)", resp.StatusCode, payload)
	}
	if payload["code"] != "CONFLICT" {
		t.Fatalf("code = %v", payload["code"])
	}
	if payload["error"] == "Server error" {
		t.Fatalf("foreign key violation must not map to a server error")
	}
}
