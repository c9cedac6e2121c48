package audithttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/branchdesk/internal/audit"
	"github.com/odyssey-erp/branchdesk/internal/rbac"
	"github.com/odyssey-erp/branchdesk/internal/shared"
)

type stubTimeline struct {
	last   audit.TimelineFilters
	result audit.Result
}

func (s *stubTimeline) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.last = filters
	return s.result, nil
}

type grants map[int64][]string

func (g grants) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	return g[userID], nil
}

func serve(t *testing.T, svc *stubTimeline, target, user string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Service: grants{1: {rbac.PermAuditView}, 2: {rbac.PermBranchView}}, Logger: logger}
	r := chi.NewRouter()
	r.Route("/audit", NewHandler(logger, svc, mw).MountRoutes)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != "" {
		sess := &shared.Session{}
		sess.SetUser(user)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestTimelineFilters(t *testing.T) {
	svc := &stubTimeline{result: audit.Result{Rows: []audit.TimelineRow{{Action: "branch.create", Entity: "branch", EntityID: "x"}}}}
	rec, body := serve(t, svc, "/audit?entity=branch&entityId=x&from=2024-03-01&to=2024-03-31T23:59:59Z&page=2&pageSize=10&actorId=7", "1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Audit timeline retrieved", body["message"])
	assert.Equal(t, "branch", svc.last.Entity)
	assert.Equal(t, "x", svc.last.EntityID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), svc.last.From)
	assert.Equal(t, 2, svc.last.Page)
	assert.Equal(t, 10, svc.last.PageSize)
	assert.Equal(t, int64(7), svc.last.ActorID)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	rec, body := serve(t, &stubTimeline{}, "/audit?from=yesterday&page=-1", "1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := body["data"].(map[string]any)["fields"].(map[string]any)
	assert.Contains(t, fields, "from")
	assert.Contains(t, fields, "page")
}

func TestTimelineRequiresPermission(t *testing.T) {
	rec, _ := serve(t, &stubTimeline{}, "/audit", "2")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(t, &stubTimeline{}, "/audit", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitKeyPrefersUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	key, err := rateLimitKey(req)
	require.NoError(t, err)
	assert.Contains(t, key, "ip:")

	sess := &shared.Session{}
	sess.SetUser("42")
	key, err = rateLimitKey(req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	require.NoError(t, err)
	assert.Equal(t, "user:42", key)
}
