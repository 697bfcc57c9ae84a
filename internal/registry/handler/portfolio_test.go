package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/careerledger/internal/identity"
	"github.com/jmerrifield20/careerledger/internal/journal"
	"github.com/jmerrifield20/careerledger/internal/ledger"
	"github.com/jmerrifield20/careerledger/internal/ledger/ledgertest"
	"github.com/jmerrifield20/careerledger/internal/registry/handler"
	"github.com/jmerrifield20/careerledger/internal/registry/repository"
	"github.com/jmerrifield20/careerledger/internal/registry/service"
	"go.uber.org/zap"
)

// ── Helpers ──────────────────────────────────────────────────────────────

type testEnv struct {
	router  *gin.Engine
	ledger  *ledgertest.Faulty
	journal *journal.Memory
}

func setupTestRouter(t *testing.T, l ledger.Ledger, faulty *ledgertest.Faulty, tokens *identity.AccountTokens) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	index := repository.NewIndexManager(l, logger)
	records := repository.NewRecordStore(l, logger)
	j := journal.NewMemory()

	reg := service.NewRegistry(l, index, records, nil, logger)
	reg.SetJournal(j)
	rev := service.NewReview(records, logger)
	rev.SetJournal(j)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewPortfolioHandler(reg, rev, tokens, logger).Register(v1)
	handler.NewJournalHandler(j, logger).Register(v1)
	handler.NewOpsHandler(reg, time.Second, logger).Register(r)
	return &testEnv{router: r, ledger: faulty, journal: j}
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	f := ledgertest.NewFaulty()
	return setupTestRouter(t, f, f, nil)
}

func do(router *gin.Engine, method, path, account, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if account != "" {
		req.Header.Set(identity.AccountHeader, account)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func publish(t *testing.T, router *gin.Engine, owner, title string) map[string]any {
	t.Helper()
	body := `{"title":"` + title + `","description":"d","skills":["go"],"experienceLevel":"Expert"}`
	w := do(router, http.MethodPost, "/api/v1/portfolios", owner, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("publish: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode(t, w)
}

// ── Publish ──────────────────────────────────────────────────────────────

func TestPublish_201(t *testing.T) {
	env := newEnv(t)
	rec := publish(t, env.router, "0xAA", "Backend engineer")

	if rec["status"] != "pending" {
		t.Errorf("expected pending status, got %v", rec["status"])
	}
	if rec["owner"] != "0xAA" {
		t.Errorf("expected owner 0xAA, got %v", rec["owner"])
	}
	if id, _ := rec["id"].(string); id == "" {
		t.Error("expected an id")
	}
	if data, _ := rec["data"].(string); !strings.HasPrefix(data, "FHE-") {
		t.Errorf("expected FHE- payload, got %q", data)
	}
}

func TestPublish_withoutSkillsReturnsEmptyList(t *testing.T) {
	env := newEnv(t)
	w := do(env.router, http.MethodPost, "/api/v1/portfolios", "0xAA", `{"title":"X"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	skills, ok := decode(t, w)["skills"].([]any)
	if !ok || len(skills) != 0 {
		t.Errorf("skills = %#v, want []", decode(t, w)["skills"])
	}
}

func TestPublish_401_noAccount(t *testing.T) {
	env := newEnv(t)
	w := do(env.router, http.MethodPost, "/api/v1/portfolios", "", `{"title":"x"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPublish_400(t *testing.T) {
	env := newEnv(t)
	cases := map[string]string{
		"malformed":     `{invalid`,
		"missing title": `{"description":"d"}`,
		"blank title":   `{"title":"   "}`,
		"bad level":     `{"title":"x","experienceLevel":"Wizard"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(env.router, http.MethodPost, "/api/v1/portfolios", "0xAA", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestPublish_502_orphan(t *testing.T) {
	env := newEnv(t)
	env.ledger.FailSet(repository.IndexKey)

	w := do(env.router, http.MethodPost, "/api/v1/portfolios", "0xAA", `{"title":"x"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("expected orphan id in body")
	}

	w = do(env.router, http.MethodGet, "/api/v1/orphans", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("orphans: expected 200, got %d", w.Code)
	}
	if got := decode(t, w)["orphans"].([]any); len(got) != 1 || got[0] != id {
		t.Fatalf("expected orphans [%s], got %v", id, got)
	}

	env.ledger.Reset()
	w = do(env.router, http.MethodPost, "/api/v1/orphans/reindex", "0xAA", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reindex: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if n := decode(t, w)["count"]; n != float64(1) {
		t.Errorf("expected 1 reindexed, got %v", n)
	}

	w = do(env.router, http.MethodGet, "/api/v1/portfolios", "", "")
	if n := decode(t, w)["total"]; n != float64(1) {
		t.Errorf("expected repaired record to be listed, total %v", n)
	}
}

func TestPublish_503_recordWriteFails(t *testing.T) {
	env := newEnv(t)
	env.ledger.FailSetsWithPrefix(repository.RecordKeyPrefix)

	w := do(env.router, http.MethodPost, "/api/v1/portfolios", "0xAA", `{"title":"x"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if msg := decode(t, w)["error"]; msg != "ledger unavailable" {
		t.Errorf("unexpected error body %v", msg)
	}
}

// ── List / Get ───────────────────────────────────────────────────────────

func TestListPortfolios_200(t *testing.T) {
	env := newEnv(t)
	publish(t, env.router, "0xAA", "Backend engineer")
	publish(t, env.router, "0xBB", "Frontend engineer")

	w := do(env.router, http.MethodGet, "/api/v1/portfolios", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["total"] != float64(2) || body["count"] != float64(2) {
		t.Errorf("expected 2 portfolios, got %v", body)
	}
}

func TestListPortfolios_emptyIsArray(t *testing.T) {
	env := newEnv(t)
	w := do(env.router, http.MethodGet, "/api/v1/portfolios", "", "")
	if !strings.Contains(w.Body.String(), `"portfolios":[]`) {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestListPortfolios_pagination(t *testing.T) {
	env := newEnv(t)
	for _, title := range []string{"a", "b", "c"} {
		publish(t, env.router, "0xAA", title)
	}

	w := do(env.router, http.MethodGet, "/api/v1/portfolios?limit=2&offset=2", "", "")
	body := decode(t, w)
	if body["count"] != float64(1) || body["total"] != float64(3) {
		t.Errorf("expected count 1 of 3, got %v", body)
	}

	w = do(env.router, http.MethodGet, "/api/v1/portfolios?offset=10", "", "")
	if decode(t, w)["count"] != float64(0) {
		t.Errorf("expected empty page past the end")
	}
}

func TestListPortfolios_search(t *testing.T) {
	env := newEnv(t)
	publish(t, env.router, "0xAA", "Rust developer")
	publish(t, env.router, "0xBB", "Designer")

	w := do(env.router, http.MethodGet, "/api/v1/portfolios?q=rust", "", "")
	body := decode(t, w)
	if body["total"] != float64(1) {
		t.Fatalf("expected 1 match, got %v", body)
	}
}

func TestListPortfolios_503(t *testing.T) {
	env := newEnv(t)
	env.ledger.FailGet(repository.IndexKey)

	w := do(env.router, http.MethodGet, "/api/v1/portfolios", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestGetPortfolio(t *testing.T) {
	env := newEnv(t)
	rec := publish(t, env.router, "0xAA", "x")

	w := do(env.router, http.MethodGet, "/api/v1/portfolios/"+rec["id"].(string), "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = do(env.router, http.MethodGet, "/api/v1/portfolios/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// ── Review ───────────────────────────────────────────────────────────────

func TestApprove_ownerFlow(t *testing.T) {
	env := newEnv(t)
	id := publish(t, env.router, "0xAA", "x")["id"].(string)

	w := do(env.router, http.MethodPost, "/api/v1/portfolios/"+id+"/approve", "0xbb", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("stranger approve: expected 403, got %d", w.Code)
	}

	w = do(env.router, http.MethodPost, "/api/v1/portfolios/"+id+"/approve", "0xaa", "")
	if w.Code != http.StatusOK {
		t.Fatalf("owner approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if s := decode(t, w)["status"]; s != "verified" {
		t.Errorf("expected verified, got %v", s)
	}

	w = do(env.router, http.MethodPost, "/api/v1/portfolios/"+id+"/reject", "0xAA", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("reject after approve: expected 409, got %d", w.Code)
	}
}

func TestReview_statusCodes(t *testing.T) {
	env := newEnv(t)
	id := publish(t, env.router, "0xAA", "x")["id"].(string)

	cases := []struct {
		name, path, account string
		want                int
	}{
		{"no account", "/api/v1/portfolios/" + id + "/reject", "", http.StatusUnauthorized},
		{"missing record", "/api/v1/portfolios/missing/reject", "0xAA", http.StatusNotFound},
		{"reject", "/api/v1/portfolios/" + id + "/reject", "0xAA", http.StatusOK},
		{"terminal", "/api/v1/portfolios/" + id + "/approve", "0xAA", http.StatusConflict},
		{"terminal stranger", "/api/v1/portfolios/" + id + "/approve", "0xBB", http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(env.router, http.MethodPost, tc.path, tc.account, "")
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestStats_200(t *testing.T) {
	env := newEnv(t)
	a := publish(t, env.router, "0xAA", "a")["id"].(string)
	publish(t, env.router, "0xAA", "b")
	do(env.router, http.MethodPost, "/api/v1/portfolios/"+a+"/approve", "0xAA", "")

	w := do(env.router, http.MethodGet, "/api/v1/stats", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["total"] != float64(2) || body["pending"] != float64(1) || body["verified"] != float64(1) {
		t.Errorf("unexpected stats %v", body)
	}
}

// ── Orphans ──────────────────────────────────────────────────────────────

func TestOrphans_501_withoutScanner(t *testing.T) {
	f := ledgertest.NewFaulty()
	env := setupTestRouter(t, ledgertest.Plain{L: f}, f, nil)

	w := do(env.router, http.MethodGet, "/api/v1/orphans", "", "")
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", w.Code)
	}
}

func TestReindex_explicitIDs(t *testing.T) {
	env := newEnv(t)
	w := do(env.router, http.MethodPost, "/api/v1/orphans/reindex", "0xAA", `{"ids":["ghost"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if n := decode(t, w)["count"]; n != float64(0) {
		t.Errorf("expected ghost id to be skipped, got count %v", n)
	}

	w = do(env.router, http.MethodPost, "/api/v1/orphans/reindex", "0xAA", `{bad`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// ── Session tokens ───────────────────────────────────────────────────────

func TestPublish_bearerToken(t *testing.T) {
	tokens, err := identity.NewAccountTokens([]byte("test-secret"), "careerledger", time.Hour)
	if err != nil {
		t.Fatalf("NewAccountTokens: %v", err)
	}
	f := ledgertest.NewFaulty()
	env := setupTestRouter(t, f, f, tokens)

	tok, err := tokens.Issue("0xCC", "ethereum")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/portfolios", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if owner := decode(t, w)["owner"]; owner != "0xCC" {
		t.Errorf("expected owner from token, got %v", owner)
	}

	// The development header is ignored once tokens are configured.
	w = do(env.router, http.MethodPost, "/api/v1/portfolios", "0xCC", `{"title":"x"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", w.Code)
	}
}

// ── Journal ──────────────────────────────────────────────────────────────

func TestJournal_endpoints(t *testing.T) {
	env := newEnv(t)
	id := publish(t, env.router, "0xAA", "x")["id"].(string)
	do(env.router, http.MethodPost, "/api/v1/portfolios/"+id+"/approve", "0xAA", "")

	w := do(env.router, http.MethodGet, "/api/v1/journal", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["length"] != float64(3) {
		t.Errorf("expected genesis + publish + approve, got length %v", body["length"])
	}
	if entries := body["entries"].([]any); len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}

	w = do(env.router, http.MethodGet, "/api/v1/journal/verify", "", "")
	if v := decode(t, w)["valid"]; v != true {
		t.Errorf("expected valid chain, got %v", v)
	}

	w = do(env.router, http.MethodGet, "/api/v1/journal/entries/2", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	entry := decode(t, w)
	if entry["action"] != journal.ActionApprove || entry["record_id"] != id {
		t.Errorf("unexpected entry %v", entry)
	}

	for path, want := range map[string]int{
		"/api/v1/journal/entries/99": http.StatusNotFound,
		"/api/v1/journal/entries/-1": http.StatusBadRequest,
		"/api/v1/journal/entries/x":  http.StatusBadRequest,
	} {
		if w := do(env.router, http.MethodGet, path, "", ""); w.Code != want {
			t.Errorf("%s: expected %d, got %d", path, want, w.Code)
		}
	}
}

// ── Ops ──────────────────────────────────────────────────────────────────

func TestOps_readyz(t *testing.T) {
	env := newEnv(t)
	if w := do(env.router, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}
	if w := do(env.router, http.MethodGet, "/readyz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", w.Code)
	}
	if w := do(env.router, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
}

type downLedger struct{ ledgertest.Plain }

func (downLedger) Ping(context.Context) error {
	return &ledger.OpError{Op: "ping", Err: ledgertest.ErrInjected}
}

func TestOps_readyz_503(t *testing.T) {
	f := ledgertest.NewFaulty()
	env := setupTestRouter(t, downLedger{ledgertest.Plain{L: f}}, f, nil)

	w := do(env.router, http.MethodGet, "/readyz", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
