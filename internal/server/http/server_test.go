package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/common"
	"github.com/dmitrijs2005/auditrack/internal/logging"
	"github.com/dmitrijs2005/auditrack/internal/server/config"
	"github.com/dmitrijs2005/auditrack/internal/server/metrics"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
	"github.com/dmitrijs2005/auditrack/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = &models.User{ID: "u-admin", UserName: "root", Role: models.RoleAdmin, Name: "Root"}
	bob     = &models.User{ID: "u-bob", UserName: "bob", Role: models.RoleAuditor, Name: "Bob"}
	carol   = &models.User{ID: "u-carol", UserName: "carol", Role: models.RoleAuditor, Name: "Carol"}
	byToken = map[string]*models.User{"tok-admin": admin, "tok-bob": bob, "tok-carol": carol}
)

type fakeUsers struct {
	registered []services.RegisterInput
	deleteErr  error
	deletedID  string
}

func (f *fakeUsers) Login(ctx context.Context, username string, password []byte) (*services.LoginResult, error) {
	if username == "alice" && string(password) == "secret" {
		return &services.LoginResult{Token: "tok-alice", User: models.PublicUser{UserName: "alice", Role: models.RoleAuditor, Name: "Alice"}}, nil
	}
	if username == "broken" {
		return nil, errors.New("connection refused to 10.0.0.5")
	}
	return nil, common.ErrAuthentication
}

func (f *fakeUsers) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "tok-expired" {
		return nil, common.ErrTokenExpired
	}
	u, ok := byToken[token]
	if !ok {
		return nil, common.ErrInvalidCredential
	}
	return u, nil
}

func (f *fakeUsers) Register(ctx context.Context, caller *models.User, in services.RegisterInput) (*models.User, error) {
	if in.Username == "bob" {
		return nil, common.ErrUserAlreadyExists
	}
	if in.Role != "admin" && in.Role != "auditor" {
		return nil, fmt.Errorf("%w: role", common.ErrValidation)
	}
	f.registered = append(f.registered, in)
	return &models.User{ID: "u-new", UserName: in.Username, Role: models.Role(in.Role), Name: in.Name}, nil
}

func (f *fakeUsers) ListUsers(ctx context.Context, caller *models.User) ([]models.PublicUser, error) {
	return []models.PublicUser{admin.Public(), bob.Public()}, nil
}

func (f *fakeUsers) DeleteUser(ctx context.Context, caller *models.User, id string) error {
	f.deletedID = id
	return f.deleteErr
}

type fakeAudits struct {
	bySlot    map[string]string
	next      int
	docs      []map[string]any
	updateErr error
	deleteErr error
	snapErr   error
	lastInput *models.AuditInput
}

func newFakeAudits() *fakeAudits {
	return &fakeAudits{bySlot: map[string]string{}}
}

func (f *fakeAudits) Create(ctx context.Context, caller *models.User, in *models.AuditInput) (*models.Audit, error) {
	if in.Sector == nil {
		return nil, common.ErrValidation
	}
	slot := caller.Name + "|" + *in.Sector
	if id, ok := f.bySlot[slot]; ok {
		return nil, &common.AuditConflictError{ExistingID: id}
	}
	f.next++
	id := fmt.Sprintf("a-%d", f.next)
	f.bySlot[slot] = id
	f.docs = append(f.docs, map[string]any{"_id": id, "setor": *in.Sector, "auditor": caller.Name})
	return &models.Audit{ID: id}, nil
}

func (f *fakeAudits) List(ctx context.Context, caller *models.User) ([]map[string]any, error) {
	out := make([]map[string]any, 0)
	for _, d := range f.docs {
		if caller.Role == models.RoleAuditor {
			if d["auditor"] != caller.Name {
				continue
			}
			own := map[string]any{}
			for k, v := range d {
				if k != "auditor" {
					own[k] = v
				}
			}
			out = append(out, own)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeAudits) Update(ctx context.Context, caller *models.User, id string, in *models.AuditInput) error {
	f.lastInput = in
	return f.updateErr
}

func (f *fakeAudits) Delete(ctx context.Context, caller *models.User, id string) error {
	return f.deleteErr
}

func (f *fakeAudits) Export(ctx context.Context, caller *models.User) ([]map[string]any, error) {
	return f.docs, nil
}

func (f *fakeAudits) Snapshot(ctx context.Context, caller *models.User) (*services.Snapshot, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	return &services.Snapshot{Key: "exports/k.json", URL: "http://s3/k", Count: len(f.docs)}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fixture struct {
	srv    *Server
	h      http.Handler
	users  *fakeUsers
	audits *fakeAudits
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	users, audits := &fakeUsers{}, newFakeAudits()
	srv := NewServer(cfg, users, audits, fakePinger{}, logging.Nop{}, metrics.New())
	return &fixture{srv: srv, h: srv.Router(), users: users, audits: audits}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	var obj map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &obj)
	return rec, obj
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API está funcionando!", rec.Body.String())

	rec, body := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	f.srv.db = fakePinger{err: errors.New("down")}
	rec, body = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/login", "", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"message": "Credenciais inválidas!"}, body)

	rec, body = f.do(t, http.MethodPost, "/login", "", `{"username":"alice","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-alice", body["token"])
	assert.Equal(t, map[string]any{"username": "alice", "role": "auditor", "name": "Alice"}, body["user"])

	rec, _ = f.do(t, http.MethodPost, "/login", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/login", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodPost, "/login", "", `{"username":"alice","password":"secret","remember":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-alice", body["token"])
}

func TestLogin_InternalErrorIsNotLeaked(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/login", "", `{"username":"broken","password":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Erro interno!", body["message"])
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestLogin_Throttled(t *testing.T) {
	f := newFixture(t)
	f.srv.limiter = newLoginLimiter(1, 2)

	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, http.MethodPost, "/login", "", `{"username":"alice","password":"wrong"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, _ := f.do(t, http.MethodPost, "/login", "", `{"username":"alice","password":"secret"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// other usernames have their own bucket
	rec, _ = f.do(t, http.MethodPost, "/login", "", `{"username":"mallory","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/audits", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token ausente!", body["message"])

	for _, tok := range []string{"garbage", "tok-expired"} {
		rec, body = f.do(t, http.MethodGet, "/audits", tok, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tok)
		assert.Equal(t, "Token inválido!", body["message"], tok)
	}

	req := httptest.NewRequest(http.MethodGet, "/audits", nil)
	req.Header.Set("Authorization", "Basic Ym9iOnB3")
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Token inválido!")
}

func TestAdminOnlyRoutes(t *testing.T) {
	f := newFixture(t)

	routes := []struct{ method, path, body string }{
		{http.MethodPost, "/register", `{"username":"x","password":"y","role":"auditor","name":"X"}`},
		{http.MethodGet, "/users", ""},
		{http.MethodDelete, "/users/u-admin", ""},
		{http.MethodGet, "/export", ""},
		{http.MethodPost, "/export/snapshot", ""},
	}
	for _, rt := range routes {
		rec, body := f.do(t, rt.method, rt.path, "tok-bob", rt.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, rt.path)
		assert.Equal(t, "Sem permissão!", body["message"], rt.path)
	}
	assert.Empty(t, f.users.registered)
	assert.Empty(t, f.users.deletedID)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/register", "tok-admin", `{"username":"dave","password":"pw","role":"auditor","name":"Dave"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Usuário registrado com sucesso!", body["message"])
	assert.Equal(t, "u-new", body["id"])

	rec, body = f.do(t, http.MethodPost, "/register", "tok-admin", `{"username":"bob","password":"pw","role":"auditor","name":"Bob"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Usuário já existe!", body["message"])

	rec, _ = f.do(t, http.MethodPost, "/register", "tok-admin", `{"username":"eve","password":"pw","role":"root","name":"Eve"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodPost, "/register", "tok-admin", `{"username":"dave","password":"pw","role":"auditor","name":"Dave","email":"d@x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u-new", body["id"])
}

func TestSubmitAudit_RejectsNUL(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{"setor":"A\u0000"}`, `{"setor":"A","obs":"\u0000"}`} {
		rec, got := f.do(t, http.MethodPost, "/submit-audit", "tok-bob", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Dados inválidos!", got["message"], body)
	}
}

func TestSubmitAudit_DuplicateSameDay(t *testing.T) {
	f := newFixture(t)

	rec, first := f.do(t, http.MethodPost, "/submit-audit", "tok-bob", `{"setor":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Auditoria registrada com sucesso!", first["message"])

	rec, second := f.do(t, http.MethodPost, "/submit-audit", "tok-bob", `{"setor":"A"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, first["id"], second["id"])
	assert.NotEmpty(t, second["message"])
}

func TestSubmitAudit_Validation(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{"nota":1}`, `{"setor":""}`, `[1,2]`, `null`, `{`} {
		rec, _ := f.do(t, http.MethodPost, "/submit-audit", "tok-bob", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec, _ := f.do(t, http.MethodPost, "/submit-audit", "tok-admin", `{"setor":"A"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListAudits_Isolation(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/submit-audit", "tok-bob", `{"setor":"A"}`)
	f.do(t, http.MethodPost, "/submit-audit", "tok-carol", `{"setor":"A"}`)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audits", nil)
	req.Header.Set("Authorization", "Bearer tok-bob")
	f.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.NotContains(t, list[0], "auditor")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/export", nil)
	req.Header.Set("Authorization", "Bearer tok-admin")
	f.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestUpdateDeleteAudit(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPut, "/audits/a-1", "tok-bob", `{"nota":9}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Auditoria atualizada com sucesso!", body["message"])
	assert.Equal(t, map[string]any{"nota": json.Number("9")}, f.audits.lastInput.Fields)

	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{common.ErrStaleWindow, http.StatusForbidden, "Só é possível alterar auditorias do dia atual!"},
		{common.ErrForbidden, http.StatusForbidden, "Sem permissão!"},
		{common.ErrorNotFound, http.StatusNotFound, "Auditoria não encontrada!"},
		{&common.AuditConflictError{ExistingID: "a-2"}, http.StatusConflict, "Já existe uma auditoria para este setor hoje!"},
	}
	for _, tc := range cases {
		f.audits.updateErr, f.audits.deleteErr = tc.err, tc.err

		rec, body = f.do(t, http.MethodPut, "/audits/a-1", "tok-bob", `{"nota":1}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.msg, body["message"])

		if tc.status == http.StatusConflict {
			assert.Equal(t, "a-2", body["id"])
			continue
		}
		rec, body = f.do(t, http.MethodDelete, "/audits/a-1", "tok-bob", "")
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.msg, body["message"])
	}

	f.audits.deleteErr = nil
	rec, body = f.do(t, http.MethodDelete, "/audits/a-1", "tok-admin", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Auditoria deletada com sucesso!", body["message"])
}

func TestUsers(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer tok-admin")
	f.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Contains(t, rec.Body.String(), `"_id":"u-bob"`)

	rec2, body := f.do(t, http.MethodDelete, "/users/u-bob", "tok-admin", "")
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "Usuário deletado com sucesso!", body["message"])
	assert.Equal(t, "u-bob", f.users.deletedID)

	f.users.deleteErr = common.ErrLastAdmin
	rec2, body = f.do(t, http.MethodDelete, "/users/u-admin", "tok-admin", "")
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
	assert.Equal(t, "Não é possível deletar o último administrador!", body["message"])

	f.users.deleteErr = common.ErrorNotFound
	rec2, body = f.do(t, http.MethodDelete, "/users/zzz", "tok-admin", "")
	assert.Equal(t, http.StatusNotFound, rec2.Code)
	assert.Equal(t, "Usuário não encontrado!", body["message"])
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/export/snapshot", "tok-admin", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "http://s3/k", body["url"])

	f.audits.snapErr = common.ErrExportDisabled
	rec, _ = f.do(t, http.MethodPost, "/export/snapshot", "tok-admin", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/submit-audit", "tok-bob", `{"setor":"A"}`)

	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auditrack_audits_created_total 1")
	assert.Contains(t, rec.Body.String(), `route="/submit-audit"`)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	f.srv.shutdownTimeout = time.Second

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.serve(ctx, lis) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + lis.Addr().String() + "/")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
