package server

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/duskline/backend/authn"
	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/keys"
	"github.com/duskline/backend/moderation"
)

// HTTPListener is the REST surface (spec §4.12/§6): routes dispatched by
// path prefix, matching the teacher's daemon handlers rather than a
// chi-style router. `/{component}_api/...` is bearer-token gated via
// Sessions.Authenticate; `/{component}_admin/...` is gated by an operator JWT
// (package authn) at or above the route's minimum role and does not check a
// bearer token.
type HTTPListener struct {
	addr           string
	sessions       *Sessions
	keyReg         *keys.Registry
	moderation     *moderation.Pipeline
	admin          db.WriteCommands
	operatorSecret string
	metrics        *prometheus.Registry
	metricsHandler fasthttp.RequestHandler

	srv *fasthttp.Server
}

func NewHTTPListener(addr string, sessions *Sessions, keyReg *keys.Registry, mod *moderation.Pipeline,
	admin db.WriteCommands, operatorSecret string, metrics *prometheus.Registry) *HTTPListener {
	return &HTTPListener{
		addr: addr, sessions: sessions, keyReg: keyReg, moderation: mod,
		admin: admin, operatorSecret: operatorSecret, metrics: metrics,
		metricsHandler: fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})),
	}
}

func (l *HTTPListener) Name() string { return "http-listener" }

func (l *HTTPListener) Run() error {
	l.srv = &fasthttp.Server{Handler: l.route}
	return l.srv.ListenAndServe(l.addr)
}

func (l *HTTPListener) Stop(error) {
	if l.srv != nil {
		_ = l.srv.Shutdown()
	}
}

func (l *HTTPListener) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case path == "/metrics":
		l.metricsHandler(ctx)
	case strings.HasPrefix(path, "/chat_api/keys"):
		l.handleRegisterKey(ctx)
	case strings.HasPrefix(path, "/profile_admin/moderation/"):
		l.handleModerationDecision(ctx)
	case strings.HasPrefix(path, "/account_admin/ban/"):
		l.handleBan(ctx)
	case strings.HasPrefix(path, "/account_admin/destroy/"):
		l.handleDestroy(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (l *HTTPListener) authenticate(ctx *fasthttp.RequestCtx) (cmn.AccountIdInternal, bool) {
	h := string(ctx.Request.Header.Peek("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		return cmn.AccountIdInternal{}, false
	}
	acct, err := l.sessions.Authenticate(cmn.AccessToken(strings.TrimPrefix(h, prefix)))
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		return cmn.AccountIdInternal{}, false
	}
	return acct, true
}

// operatorToken extracts and verifies the X-Operator-Token header against
// min, writing a response and returning false on failure.
func (l *HTTPListener) operatorToken(ctx *fasthttp.RequestCtx, min authn.Role) (*authn.OperatorToken, bool) {
	tok, err := authn.Gate(string(ctx.Request.Header.Peek("X-Operator-Token")), l.operatorSecret, min)
	if err != nil {
		if cmn.IsKind(err, cmn.KindForbidden) {
			ctx.SetStatusCode(fasthttp.StatusForbidden)
		} else {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		}
		return nil, false
	}
	return tok, true
}

type registerKeyRequest struct {
	Version  int64  `json:"version"`
	Data     string `json:"data"`
	Override *int   `json:"override,omitempty"`
}

func (l *HTTPListener) handleRegisterKey(ctx *fasthttp.RequestCtx) {
	acct, ok := l.authenticate(ctx)
	if !ok {
		return
	}
	var req registerKeyRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	keyID, err := l.keyReg.Add(acct, req.Version, req.Data, req.Override, time.Now())
	if err != nil {
		ctx.SetStatusCode(cmn.HTTPStatus(err))
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	body, _ := json.Marshal(map[string]int64{"key_id": keyID})
	ctx.SetBody(body)
}

type moderationDecisionRequest struct {
	Field            int     `json:"field"`
	Accept           bool    `json:"accept"`
	RejectedCategory *string `json:"rejected_category,omitempty"`
	RejectedDetails  *string `json:"rejected_details,omitempty"`
	MoveToHuman      bool    `json:"move_to_human"`
	ExpectedValue    string  `json:"expected_value"`
}

// handleModerationDecision expects the path
// /profile_admin/moderation/{account_uuid}.
func (l *HTTPListener) handleModerationDecision(ctx *fasthttp.RequestCtx) {
	if _, ok := l.operatorToken(ctx, authn.ModeratorRole); !ok {
		return
	}
	uuid := strings.TrimPrefix(string(ctx.Path()), "/profile_admin/moderation/")
	if uuid == "" {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	var req moderationDecisionRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	dec := moderation.Decision{
		Accept: req.Accept, RejectedCategory: req.RejectedCategory,
		RejectedDetails: req.RejectedDetails, MoveToHuman: req.MoveToHuman,
	}
	row, err := l.sessions.read.AccountByUUID(cmn.AccountId(uuid))
	if err != nil {
		ctx.SetStatusCode(cmn.HTTPStatus(err))
		return
	}
	if err := l.moderation.HumanDecideString(row.IdInternal, moderation.Field(req.Field), req.ExpectedValue, dec); err != nil {
		ctx.SetStatusCode(cmn.HTTPStatus(err))
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

// handleBan expects /account_admin/ban/{account_uuid}.
func (l *HTTPListener) handleBan(ctx *fasthttp.RequestCtx) {
	if _, ok := l.operatorToken(ctx, authn.AdminRole); !ok {
		return
	}
	uuid := strings.TrimPrefix(string(ctx.Path()), "/account_admin/ban/")
	row, err := l.sessions.read.AccountByUUID(cmn.AccountId(uuid))
	if err != nil {
		ctx.SetStatusCode(cmn.HTTPStatus(err))
		return
	}
	if err := l.admin.Admin().Ban(row.IdInternal); err != nil {
		ctx.SetStatusCode(cmn.HTTPStatus(err))
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

// handleDestroy expects /account_admin/destroy/{account_uuid}.
func (l *HTTPListener) handleDestroy(ctx *fasthttp.RequestCtx) {
	if _, ok := l.operatorToken(ctx, authn.AdminRole); !ok {
		return
	}
	uuid := strings.TrimPrefix(string(ctx.Path()), "/account_admin/destroy/")
	row, err := l.sessions.read.AccountByUUID(cmn.AccountId(uuid))
	if err != nil {
		ctx.SetStatusCode(cmn.HTTPStatus(err))
		return
	}
	if err := l.admin.Admin().DestroyAccount(row.IdInternal); err != nil {
		ctx.SetStatusCode(cmn.HTTPStatus(err))
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}
