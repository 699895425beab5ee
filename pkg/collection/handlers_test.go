package collection

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herbtrace/herbtrace/pkg/audit"
	"github.com/herbtrace/herbtrace/pkg/authz"
	"github.com/herbtrace/herbtrace/pkg/cache"
	"github.com/herbtrace/herbtrace/pkg/ident"
)

type apiFixture struct {
	handler http.Handler
	svc     *Service
	audit   *audit.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := newTestDB(t)
	auditStore := audit.NewStore(db)
	require.NoError(t, auditStore.AutoMigrate())

	caches := cache.NewManager(cache.DefaultConfig())
	svc := NewService(NewStore(db),
		WithGenerator(ident.New(ident.WithClock(testNow))),
		WithRecorder(auditStore),
		WithInvalidator(caches),
		WithClock(testNow),
	)

	r := chi.NewRouter()
	r.Use(authz.IdentityMiddleware(authz.HeaderExtractor, nil))
	r.Mount("/collections", NewRouter(svc, auditStore, caches, nil))
	return &apiFixture{handler: r, svc: svc, audit: auditStore}
}

func (f *apiFixture) do(t *testing.T, method, path string, actor *authz.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(authz.PrincipalHeader, actor.ID)
		req.Header.Set(authz.RoleHeader, string(actor.Role))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) create(t *testing.T, actor authz.Actor) *Record {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/collections", &actor, delhiAshwagandha())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[CreateResponse](t, rec).Collection
}

func TestAPI_Create(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/collections", &farmer, delhiAshwagandha())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[CreateResponse](t, rec)
	require.NotNil(t, resp.Collection)
	assert.Equal(t, "/api/v1/collections/"+resp.Collection.ID, rec.Header().Get("Location"))
	assert.Equal(t, StatusCollected, resp.Collection.Status)
	require.NotNil(t, resp.Validation)
	assert.True(t, resp.Validation.Valid)
	assert.Len(t, resp.Validation.Warnings, 1)
}

func TestAPI_Create_Errors(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("no identity", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/collections", nil, delhiAshwagandha())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("processor blocked by route guard", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/collections", &processor, delhiAshwagandha())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("validation errors listed", func(t *testing.T) {
		req := delhiAshwagandha()
		req.HerbName = ""
		req.QuantityKg = -1
		rec := f.do(t, http.MethodPost, "/collections", &farmer, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[ErrorResponse](t, rec)
		assert.Equal(t, "validation_failed", body.Error)
		assert.Equal(t, []string{"herbName is required", "quantityKg must be greater than 0"}, body.Details)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString("{"))
		req.Header.Set(authz.PrincipalHeader, farmer.ID)
		req.Header.Set(authz.RoleHeader, string(farmer.Role))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_StatusAndDelete(t *testing.T) {
	f := newAPIFixture(t)
	created := f.create(t, farmer)
	path := "/collections/" + created.ID

	rec := f.do(t, http.MethodPatch, path+"/status", &farmer2, StatusRequest{Status: "IN_STORAGE"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPatch, path+"/status", &farmer, StatusRequest{Status: "collected"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, path+"/status", &farmer, StatusRequest{Status: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, path+"/status", &farmer, StatusRequest{Status: "in_storage"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, StatusInStorage, decode[Record](t, rec).Status)

	rec = f.do(t, http.MethodDelete, path, &farmer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, path, &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusRejected, decode[Record](t, rec).Status)

	rec = f.do(t, http.MethodGet, path, &processor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusRejected, decode[Record](t, rec).Status)

	rec = f.do(t, http.MethodPatch, "/collections/COL20241201999/status", &admin, StatusRequest{Status: "APPROVED"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_History(t *testing.T) {
	f := newAPIFixture(t)
	created := f.create(t, farmer)
	path := "/collections/" + created.ID

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, path+"/status", &regulator, StatusRequest{Status: "TESTED"}).Code)
	f.do(t, http.MethodDelete, path, &farmer, nil)

	rec := f.do(t, http.MethodGet, path+"/history", &regulator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[HistoryResponse](t, rec)
	types := make([]string, len(hist.Events))
	for i, e := range hist.Events {
		types[i] = e.EventType
	}
	assert.Equal(t, []string{
		audit.EventCollectionCreated,
		audit.EventCollectionStatusChanged,
		audit.EventAccessDenied,
	}, types)

	rec = f.do(t, http.MethodGet, "/collections/COL20241201999/history", &regulator, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Transitions(t *testing.T) {
	f := newAPIFixture(t)
	created := f.create(t, farmer)

	rec := f.do(t, http.MethodGet, "/collections/"+created.ID+"/transitions", &farmer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["enforceAdjacency"])
	assert.Len(t, body["allowed"], 7)
}

func TestAPI_Reads(t *testing.T) {
	f := newAPIFixture(t)
	created := f.create(t, farmer)

	tests := []struct {
		name   string
		path   string
		actor  authz.Actor
		status int
	}{
		{"list for farmer", "/collections", farmer, http.StatusOK},
		{"consumer blocked", "/collections", authz.Actor{ID: "c1", Role: authz.RoleConsumer}, http.StatusForbidden},
		{"mine", "/collections/mine", farmer, http.StatusOK},
		{"mine is farmer only", "/collections/mine", regulator, http.StatusForbidden},
		{"all for admin", "/collections/all?filter=" + "status%20%3D%20%27COLLECTED%27", admin, http.StatusOK},
		{"all bad filter", "/collections/all?filter=status", admin, http.StatusBadRequest},
		{"all blocked for processor", "/collections/all", processor, http.StatusForbidden},
		{"search", "/collections/search?q=ashwa", processor, http.StatusOK},
		{"search requires q", "/collections/search", processor, http.StatusBadRequest},
		{"by status", "/collections/by-status/collected", processor, http.StatusOK},
		{"by status unknown", "/collections/by-status/lost", processor, http.StatusBadRequest},
		{"by status blocked for farmer", "/collections/by-status/COLLECTED", farmer, http.StatusForbidden},
		{"by herb", "/collections/by-herb/Ashwagandha", processor, http.StatusOK},
		{"by location", "/collections/by-location?q=delhi", processor, http.StatusOK},
		{"statistics", "/collections/statistics?since=2024-11-01", regulator, http.StatusOK},
		{"statistics bad since", "/collections/statistics?since=yesterday", regulator, http.StatusBadRequest},
		{"statistics blocked for processor", "/collections/statistics", processor, http.StatusForbidden},
		{"herbs", "/collections/herbs", processor, http.StatusOK},
		{"locations", "/collections/locations", processor, http.StatusOK},
		{"recent", "/collections/recent?limit=5", processor, http.StatusOK},
		{"recent bad limit", "/collections/recent?limit=-1", processor, http.StatusBadRequest},
		{"get", "/collections/" + created.ID, processor, http.StatusOK},
		{"get missing", "/collections/COL20241201999", processor, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := tt.actor
			rec := f.do(t, http.MethodGet, tt.path, &actor, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("list mine returns own record", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/collections/mine", &farmer, nil)
		list := decode[List](t, rec)
		require.Len(t, list.Items, 1)
		assert.Equal(t, created.ID, list.Items[0].ID)
	})
}

func TestAPI_StatisticsCacheInvalidatedOnWrite(t *testing.T) {
	f := newAPIFixture(t)
	f.create(t, farmer)

	rec := f.do(t, http.MethodGet, "/collections/statistics", &farmer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, int64(1), decode[Statistics](t, rec).TotalCollections)

	rec = f.do(t, http.MethodGet, "/collections/statistics", &farmer, nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	f.create(t, farmer)

	rec = f.do(t, http.MethodGet, "/collections/statistics", &farmer, nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, int64(2), decode[Statistics](t, rec).TotalCollections)
}
