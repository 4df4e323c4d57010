package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *GoogleSheetRepository {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	repo, err := newRepository(context.Background(), "sheet-1", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo
}

func TestAppendRows(t *testing.T) {
	var body struct {
		Values [][]interface{} `json:"values"`
	}
	var path, inputOption string

	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		inputOption = r.URL.Query().Get("valueInputOption")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	rows := [][]interface{}{{"grouped", "Bottle caps", "185"}, {"ungrouped", "Crate", "50"}}
	if err := repo.AppendRows(context.Background(), "Shifts!A:J", rows); err != nil {
		t.Fatalf("append rows: %v", err)
	}

	if !strings.HasPrefix(path, "/v4/spreadsheets/sheet-1/values/") || !strings.HasSuffix(path, ":append") {
		t.Errorf("unexpected request path %s", path)
	}
	if inputOption != "USER_ENTERED" {
		t.Errorf("expected USER_ENTERED input option, got %q", inputOption)
	}
	if len(body.Values) != 2 || body.Values[0][1] != "Bottle caps" {
		t.Errorf("unexpected payload %v", body.Values)
	}
}

func TestAppendRowsValidation(t *testing.T) {
	called := false
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	if err := repo.AppendRows(context.Background(), "", [][]interface{}{{"x"}}); err == nil {
		t.Errorf("expected error for empty range")
	}
	if err := repo.AppendRows(context.Background(), "Shifts!A:J", nil); err != nil {
		t.Errorf("expected no-op for empty rows, got %v", err)
	}
	if called {
		t.Errorf("no request should reach the API")
	}
}

func TestReadRange(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Shifts!A1:B2","values":[["Generated","Kind"],["2026-03-02 14:00","grouped"]]}`))
	})

	values, err := repo.ReadRange(context.Background(), "Shifts!A1:B2")
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if len(values) != 2 || values[1][1] != "grouped" {
		t.Errorf("unexpected values %v", values)
	}
}

func TestReadRangeError(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})

	if _, err := repo.ReadRange(context.Background(), "Shifts!A:J"); err == nil {
		t.Errorf("expected error on 403")
	}
}
