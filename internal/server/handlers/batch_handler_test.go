package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
	"github.com/mamadbah2/mouldtrack/internal/service/autosave"
)

type recordingSaver struct {
	raws []string
	err  error
}

func (s *recordingSaver) SaveField(_ context.Context, ref models.UnitRef, field, raw string) (*autosave.Result, error) {
	s.raws = append(s.raws, raw)
	if s.err != nil {
		return nil, s.err
	}
	return &autosave.Result{Ref: ref, Message: field + " saved"}, nil
}

func newSaveEngine(saver Saver, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := NewBatchHandler(nil, nil, saver, nil, nil, logger)
	engine.PATCH("/batches/:kind/:id", h.Save)
	return engine
}

func patch(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, "/batches/grouped/g1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestSaveValueForms(t *testing.T) {
	testCases := []struct {
		name string
		body string
		raw  string
	}{
		{"string", `{"field":"productionLoss","value":"15"}`, "15"},
		{"integer", `{"field":"productionLoss","value":15}`, "15"},
		{"fraction", `{"field":"productionLoss","value":15.5}`, "15.5"},
		{"null clears", `{"field":"mouldingStartedAt","value":null}`, ""},
		{"absent clears", `{"field":"mouldingStartedAt"}`, ""},
		{"timestamp", `{"field":"mouldingStartedAt","value":"2026-03-02T06:00"}`, "2026-03-02T06:00"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			saver := &recordingSaver{}
			rec := patch(newSaveEngine(saver, nil), tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(saver.raws) != 1 || saver.raws[0] != tc.raw {
				t.Errorf("expected raw value %q, got %v", tc.raw, saver.raws)
			}
		})
	}
}

func TestSaveRejectsOtherJSONValues(t *testing.T) {
	for _, body := range []string{
		`{"field":"productionLoss","value":true}`,
		`{"field":"productionLoss","value":[15]}`,
		`{"field":"productionLoss","value":{"qty":15}}`,
	} {
		saver := &recordingSaver{}
		rec := patch(newSaveEngine(saver, nil), body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
		if len(saver.raws) != 0 {
			t.Errorf("%s: value must not reach the coordinator", body)
		}
	}
}

func TestSaveCanceledByCaller(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	saver := &recordingSaver{err: fmt.Errorf("patch /groups/g1: %w", context.Canceled)}

	rec := patch(newSaveEngine(saver, zap.New(core)), `{"field":"mouldingStartedAt","value":"2026-03-02T06:00"}`)
	if rec.Code != statusClientClosedRequest {
		t.Fatalf("expected %d, got %d", statusClientClosedRequest, rec.Code)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Errorf("cancellation must not be logged as an error, got %d entries", n)
	}
	if logs.FilterMessage("request canceled by caller").Len() != 1 {
		t.Errorf("expected a debug entry for the canceled request")
	}
}
