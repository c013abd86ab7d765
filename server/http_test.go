package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"github.com/duskline/backend/authn"
	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/keys"
	"github.com/duskline/backend/moderation"
	"github.com/duskline/backend/notify"
)

func newTestListener(t *testing.T) *HTTPListener {
	t.Helper()
	d, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	arena := cache.NewArena()
	hub := notify.NewHub(arena)
	sessions := NewSessions(d.Write, d.Read, arena, hub)
	keyReg := keys.New(d.Write, d.Read, 5)
	mod := moderation.New(d.Write, d.Read, &moderation.Allowlist{}, hub)
	reg := prometheus.NewRegistry()
	return NewHTTPListener("", sessions, keyReg, mod, d.Write, "op-secret", reg)
}

func requestCtx(method, path string, body []byte) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	req.SetBody(body)
	ctx.Init(&req, nil, nil)
	return &ctx
}

func TestHealthzReturnsOK(t *testing.T) {
	l := newTestListener(t)
	ctx := requestCtx("GET", "/healthz", nil)
	l.route(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
}

func TestRegisterKeyRejectsMissingBearerToken(t *testing.T) {
	l := newTestListener(t)
	ctx := requestCtx("POST", "/chat_api/keys", []byte(`{"version":1,"data":"abc"}`))
	l.route(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", ctx.Response.StatusCode())
	}
}

func TestRegisterKeySucceedsWithValidSession(t *testing.T) {
	l := newTestListener(t)
	id, err := l.admin.RegisterAccount(time.Now())
	if err != nil {
		t.Fatalf("register account: %v", err)
	}
	access, _, err := l.sessions.Login(id, time.Now())
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	ctx := requestCtx("POST", "/chat_api/keys", []byte(`{"version":1,"data":"abc"}`))
	ctx.Request.Header.Set("Authorization", "Bearer "+string(access))
	l.route(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
}

func TestBanRequiresAdminOperatorRole(t *testing.T) {
	l := newTestListener(t)
	id, err := l.admin.RegisterAccount(time.Now())
	if err != nil {
		t.Fatalf("register account: %v", err)
	}

	ctx := requestCtx("POST", "/account_admin/ban/"+string(id.AccountId()), nil)
	modTok, _ := authn.IssueToken("op-1", authn.ModeratorRole, "op-secret", time.Hour)
	ctx.Request.Header.Set("X-Operator-Token", modTok)
	l.route(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusForbidden {
		t.Fatalf("expected a moderator-role token to be rejected for ban, got %d", ctx.Response.StatusCode())
	}

	adminTok, _ := authn.IssueToken("op-1", authn.AdminRole, "op-secret", time.Hour)
	ctx2 := requestCtx("POST", "/account_admin/ban/"+string(id.AccountId()), nil)
	ctx2.Request.Header.Set("X-Operator-Token", adminTok)
	l.route(ctx2)
	if ctx2.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected an admin-role token to be allowed to ban, got %d", ctx2.Response.StatusCode())
	}

	row, err := l.sessions.read.AccountByUUID(id.AccountId())
	if err != nil {
		t.Fatalf("read account: %v", err)
	}
	if row.State != cmn.AccountBanned {
		t.Fatalf("expected account to be banned, got state %v", row.State)
	}
}
