package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
	"github.com/mamadbah2/mouldtrack/internal/server/handlers"
	"github.com/mamadbah2/mouldtrack/internal/service/autosave"
	"github.com/mamadbah2/mouldtrack/internal/service/detail"
	"github.com/mamadbah2/mouldtrack/internal/service/listing"
	"github.com/mamadbah2/mouldtrack/internal/service/reporting"
	"github.com/mamadbah2/mouldtrack/internal/store"
	"github.com/mamadbah2/mouldtrack/pkg/clients/production"
)

type fakeProduction struct {
	groups    []production.GroupDTO
	items     []production.ItemDTO
	itemErr   error
	updateErr error
}

func (f *fakeProduction) FetchGroups(context.Context) ([]production.GroupDTO, error) {
	return f.groups, nil
}

func (f *fakeProduction) FetchUngrouped(context.Context) ([]production.ItemDTO, error) {
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	return f.items, nil
}

func (f *fakeProduction) UpdateGroupField(ctx context.Context, req production.UpdateFieldRequest) (*production.UpdateResult, error) {
	return f.update(req)
}

func (f *fakeProduction) UpdateItemField(ctx context.Context, req production.UpdateFieldRequest) (*production.UpdateResult, error) {
	return f.update(req)
}

func (f *fakeProduction) update(req production.UpdateFieldRequest) (*production.UpdateResult, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &production.UpdateResult{Message: "Updated " + string(req.Field)}, nil
}

func newTestEngine(t *testing.T, backend *fakeProduction) *gin.Engine {
	t.Helper()

	records := store.New()
	units := listing.NewService(backend, records, nil)
	_ = units.Refresh(context.Background())

	details := detail.NewService(units, records)
	coord := autosave.NewCoordinator(backend, records, units, nil, nil, autosave.Options{Timeout: time.Second})
	reports := reporting.NewService(details, nil, "", time.UTC, nil)

	engine := New(handlers.NewBatchHandler(units, details, coord, reports, nil, nil), nil)
	gin.SetMode(gin.TestMode)
	return engine
}

func sampleProduction() *fakeProduction {
	return &fakeProduction{
		groups: []production.GroupDTO{{
			ID:        "g1",
			GroupName: "Bottle caps",
			Items: []production.ItemDTO{
				{ID: "c1", ItemName: "Cap 28mm", QtyPerBatch: decimal.Zero},
				{ID: "c2", ItemName: "Cap 38mm", QtyPerBatch: decimal.NewFromInt(200)},
			},
		}},
		items: []production.ItemDTO{{ID: "i1", ItemName: "Crate", QtyPerBatch: decimal.NewFromInt(50)}},
	}
}

func perform(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	rec := perform(newTestEngine(t, sampleProduction()), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCollectionsAreIndependent(t *testing.T) {
	backend := sampleProduction()
	backend.itemErr = errors.New("connection refused")
	engine := newTestEngine(t, backend)

	groups := perform(engine, http.MethodGet, "/batches/groups", "")
	if groups.Code != http.StatusOK {
		t.Fatalf("expected groups to load, got %d", groups.Code)
	}
	units := decode(t, groups)["units"].([]any)
	if len(units) != 1 {
		t.Fatalf("expected one group, got %d", len(units))
	}
	first := units[0].(map[string]any)
	if first["displayName"] != "Bottle caps" || first["targetQuantityPerBatch"] != "200" || first["stage"] != "not_started" {
		t.Errorf("unexpected group %v", first)
	}

	items := perform(engine, http.MethodGet, "/batches/ungrouped", "")
	if items.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for failed collection, got %d", items.Code)
	}
	if decode(t, items)["error"] == nil {
		t.Errorf("expected error message in body")
	}
}

func TestSaveField(t *testing.T) {
	backend := sampleProduction()
	engine := newTestEngine(t, backend)

	testCases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"end before start", "/batches/grouped/g1", `{"field":"mouldingEndedAt","value":"2026-03-02T14:00"}`, http.StatusConflict},
		{"unknown field", "/batches/grouped/g1", `{"field":"status","value":"done"}`, http.StatusBadRequest},
		{"bad timestamp", "/batches/grouped/g1", `{"field":"mouldingStartedAt","value":"soon"}`, http.StatusBadRequest},
		{"unknown kind", "/batches/pallets/g1", `{"field":"mouldingStartedAt","value":""}`, http.StatusBadRequest},
		{"unknown unit", "/batches/grouped/nope", `{"field":"mouldingStartedAt","value":""}`, http.StatusNotFound},
		{"missing field", "/batches/grouped/g1", `{"value":"1"}`, http.StatusBadRequest},
		{"start", "/batches/grouped/g1", `{"field":"mouldingStartedAt","value":"2026-03-02T06:00"}`, http.StatusOK},
		{"end", "/batches/groups/g1", `{"field":"mouldingEndedAt","value":"2026-03-02T14:00"}`, http.StatusOK},
		{"loss", "/batches/grouped/g1", `{"field":"productionLoss","value":"15"}`, http.StatusOK},
		{"loss as number", "/batches/grouped/g1", `{"field":"productionLoss","value":15}`, http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := perform(engine, http.MethodPatch, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}

	rec := perform(engine, http.MethodGet, "/batches/grouped/g1", "")
	body := decode(t, rec)
	if body["achievedQuantity"] != "185" || body["stage"] != "loss_recorded" || body["lossEditable"] != true {
		t.Errorf("unexpected detail after saves %v", body)
	}
	if body["targetSourceIndex"] != float64(1) {
		t.Errorf("expected second member to drive the target, got %v", body["targetSourceIndex"])
	}
}

func TestSaveRejectedByBackend(t *testing.T) {
	backend := sampleProduction()
	backend.updateErr = &models.ServerRejectionError{Message: "Batch is locked"}
	engine := newTestEngine(t, backend)

	rec := perform(engine, http.MethodPatch, "/batches/ungrouped/i1", `{"field":"mouldingStartedAt","value":"2026-03-02T06:00"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if msg := decode(t, rec)["error"]; msg != "Batch is locked" {
		t.Errorf("expected backend message, got %v", msg)
	}

	view := decode(t, perform(engine, http.MethodGet, "/batches/ungrouped/i1", ""))
	if view["mouldingStartedAt"] != nil {
		t.Errorf("expected start to be rolled back, got %v", view["mouldingStartedAt"])
	}
}

func TestRemoveIsLocalOnly(t *testing.T) {
	engine := newTestEngine(t, sampleProduction())

	rec := perform(engine, http.MethodDelete, "/batches/ungrouped/i1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decode(t, rec)["localOnly"] != true {
		t.Errorf("expected removal to be flagged local only")
	}

	if rec := perform(engine, http.MethodGet, "/batches/ungrouped/i1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected removed unit to be gone, got %d", rec.Code)
	}
	if rec := perform(engine, http.MethodDelete, "/batches/ungrouped/i1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected second removal to 404, got %d", rec.Code)
	}

	perform(engine, http.MethodPost, "/batches/refresh", "")
	summary := decode(t, perform(engine, http.MethodGet, "/batches/summary", ""))
	if summary["ungrouped"] != float64(0) || summary["groups"] != float64(1) {
		t.Errorf("unexpected summary after refresh %v", summary)
	}
}

func TestRefreshSingleCollection(t *testing.T) {
	backend := sampleProduction()
	engine := newTestEngine(t, backend)

	backend.itemErr = errors.New("timeout")
	if rec := perform(engine, http.MethodPost, "/batches/refresh?kind=groups", ""); rec.Code != http.StatusOK {
		t.Errorf("expected grouped refresh to succeed, got %d", rec.Code)
	}
	if rec := perform(engine, http.MethodPost, "/batches/refresh?kind=items", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("expected ungrouped refresh to fail, got %d", rec.Code)
	}
	if rec := perform(engine, http.MethodPost, "/batches/refresh", ""); rec.Code != http.StatusOK {
		t.Errorf("expected partial refresh to answer 200, got %d", rec.Code)
	}
	if rec := perform(engine, http.MethodPost, "/batches/refresh?kind=pallets", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected unknown kind to be rejected, got %d", rec.Code)
	}
}

func TestShiftWorkbookDownload(t *testing.T) {
	rec := perform(newTestEngine(t, sampleProduction()), http.MethodGet, "/reports/shift.xlsx", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("unexpected content type %s", ct)
	}
	if rec.Body.Len() == 0 {
		t.Errorf("expected workbook bytes")
	}
}

func TestHistoryDisabled(t *testing.T) {
	rec := perform(newTestEngine(t, sampleProduction()), http.MethodGet, "/batches/grouped/g1/history", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when the archive is disabled, got %d", rec.Code)
	}
}
