package branches

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/odyssey-erp/branchdesk/internal/rbac"
	"github.com/odyssey-erp/branchdesk/internal/shared"
)

type grants map[int64][]string

func (g grants) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	return g[userID], nil
}

const (
	viewer int64 = 10
	editor int64 = 20
)

type handlerFixture struct {
	serviceFixture
	router http.Handler
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	fx := newServiceFixture(t, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Service: grants{
		viewer: {rbac.PermBranchView},
		editor: {rbac.PermBranchView, rbac.PermBranchEdit},
	}, Logger: logger}

	r := chi.NewRouter()
	r.Route("/branches", NewHandler(logger, fx.svc, mw).MountRoutes)
	return handlerFixture{serviceFixture: fx, router: r}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (fx handlerFixture) do(t *testing.T, method, path, body string, user int64) (int, response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if user > 0 {
		sess := &shared.Session{}
		sess.SetUser(strconv.FormatInt(user, 10))
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return rec.Code, res
}

func TestHandlerCreateAndShow(t *testing.T) {
	fx := newHandlerFixture(t)

	code, res := fx.do(t, http.MethodPost, "/branches", `{"name":" Main St ","address":"123 Main St","email":"Ops@Example.com"}`, editor)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, res.Success)
	assert.Equal(t, "Branch created", res.Message)

	var created Branch
	require.NoError(t, json.Unmarshal(res.Data, &created))
	assert.Equal(t, "Main St", created.Name)
	assert.Equal(t, "ops@example.com", created.Email)
	assert.True(t, created.IsActive)
	assert.NotContains(t, string(res.Data), "name_key")
	assert.Equal(t, []string{"branch.create"}, fx.audit.actions())
	assert.Equal(t, editor, fx.audit.logs[0].ActorID)

	code, res = fx.do(t, http.MethodGet, "/branches/"+created.ID.Hex(), "", viewer)
	require.Equal(t, http.StatusOK, code)
	var shown Branch
	require.NoError(t, json.Unmarshal(res.Data, &shown))
	assert.Equal(t, created.ID, shown.ID)
}

func TestHandlerCreateValidation(t *testing.T) {
	fx := newHandlerFixture(t)

	code, res := fx.do(t, http.MethodPost, "/branches", `{"name":"","address":"  "}`, editor)
	require.Equal(t, http.StatusBadRequest, code)
	assert.False(t, res.Success)
	assert.Equal(t, "Validation failed", res.Message)

	var fields struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &fields))
	assert.Contains(t, fields.Fields, "name")
	assert.Contains(t, fields.Fields, "address")
	assert.Empty(t, fx.repo.items)
}

func TestHandlerRejectsSystemFields(t *testing.T) {
	fx := newHandlerFixture(t)

	code, res := fx.do(t, http.MethodPost, "/branches", `{"name":"A","address":"B","createdAt":"2020-01-01T00:00:00Z"}`, editor)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Bad request", res.Message)
	assert.Empty(t, fx.repo.items)
}

func TestHandlerPermissions(t *testing.T) {
	fx := newHandlerFixture(t)

	code, res := fx.do(t, http.MethodGet, "/branches", "", 0)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, res.Success)

	code, _ = fx.do(t, http.MethodPost, "/branches", `{"name":"A","address":"B"}`, viewer)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Empty(t, fx.repo.items)
}

func TestHandlerShowErrors(t *testing.T) {
	fx := newHandlerFixture(t)

	code, res := fx.do(t, http.MethodGet, "/branches/not-an-id", "", viewer)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid ID", res.Message)

	code, res = fx.do(t, http.MethodGet, "/branches/"+primitive.NewObjectID().Hex(), "", viewer)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not found", res.Message)
}

func TestHandlerUpdateAndLifecycle(t *testing.T) {
	fx := newHandlerFixture(t)
	created, err := fx.svc.Create(context.Background(), editor, BranchInput{Name: "Main St", Address: "123 Main St", Manager: ptr(int64(5))})
	require.NoError(t, err)
	base := "/branches/" + created.ID.Hex()

	code, res := fx.do(t, http.MethodPatch, base, `{"phone":"555-0100","manager":null}`, editor)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Branch updated", res.Message)
	var updated Branch
	require.NoError(t, json.Unmarshal(res.Data, &updated))
	assert.Equal(t, "555-0100", updated.Phone)
	assert.Equal(t, "Main St", updated.Name)
	assert.Nil(t, updated.Manager)

	code, res = fx.do(t, http.MethodPost, base+"/deactivate", "", editor)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Branch deactivated", res.Message)
	assert.Len(t, fx.notifier.deactivated, 1)

	code, res = fx.do(t, http.MethodPost, base+"/activate", "", editor)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Branch activated", res.Message)
	assert.True(t, fx.repo.items[created.ID].IsActive)
}

func TestHandlerList(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Create(ctx, editor, BranchInput{Name: "Airport", Address: "1 Runway"})
	require.NoError(t, err)
	_, err = fx.svc.Create(ctx, editor, BranchInput{Name: "Depot", Address: "2 Dock", IsActive: ptr(false)})
	require.NoError(t, err)

	code, res := fx.do(t, http.MethodGet, "/branches?isActive=true&limit=5", "", viewer)
	require.Equal(t, http.StatusOK, code)
	var page Page
	require.NoError(t, json.Unmarshal(res.Data, &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 5, page.Limit)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Airport", page.Items[0].Name)

	code, res = fx.do(t, http.MethodGet, "/branches?isActive=maybe", "", viewer)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Validation failed", res.Message)
}
