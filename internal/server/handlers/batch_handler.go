package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
	"github.com/mamadbah2/mouldtrack/internal/service/autosave"
	"github.com/mamadbah2/mouldtrack/internal/service/listing"
)

const (
	workbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// statusClientClosedRequest is the nginx convention for a caller that
	// went away before the response was written.
	statusClientClosedRequest = 499
)

// Listing is the part of the listing service the HTTP layer drives.
type Listing interface {
	Collection(kind models.UnitKind) listing.CollectionState
	Counts() listing.Summary
	Refresh(ctx context.Context) error
	Fetch(ctx context.Context, kind models.UnitKind) ([]models.ProductionUnit, error)
	RemoveUnit(ref models.UnitRef) bool
}

// Details projects listed units.
type Details interface {
	Detail(ref models.UnitRef) (models.BatchDetail, error)
	Details(kind models.UnitKind) []models.BatchDetail
}

// Saver persists a single field edit.
type Saver interface {
	SaveField(ctx context.Context, ref models.UnitRef, field, raw string) (*autosave.Result, error)
}

// Workbooks renders the shift report.
type Workbooks interface {
	WriteWorkbook(w io.Writer) error
}

// History reads archived snapshots of a unit.
type History interface {
	History(ctx context.Context, kind models.UnitKind, unitID string, limit int64) ([]models.BatchSnapshot, error)
}

// BatchHandler exposes batch tracking over HTTP.
type BatchHandler struct {
	listing   Listing
	details   Details
	saver     Saver
	workbooks Workbooks
	history   History
	logger    *zap.Logger
}

// NewBatchHandler constructs the HTTP handler adapter. History may be nil
// when the audit archive is disabled.
func NewBatchHandler(units Listing, details Details, saver Saver, workbooks Workbooks, history History, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{
		listing:   units,
		details:   details,
		saver:     saver,
		workbooks: workbooks,
		history:   history,
		logger:    logger,
	}
}

type collectionResponse struct {
	Kind      models.UnitKind      `json:"kind"`
	Loading   bool                 `json:"loading"`
	Error     string               `json:"error,omitempty"`
	FetchedAt *time.Time           `json:"fetchedAt,omitempty"`
	Units     []models.BatchDetail `json:"units"`
}

// saveRequest carries the edited value as a string, a number, or null to clear.
type saveRequest struct {
	Field string          `json:"field" binding:"required"`
	Value json.RawMessage `json:"value"`
}

// Groups lists the grouped production lines.
func (h *BatchHandler) Groups(c *gin.Context) {
	h.collection(c, models.KindGrouped)
}

// Ungrouped lists the standalone items.
func (h *BatchHandler) Ungrouped(c *gin.Context) {
	h.collection(c, models.KindUngrouped)
}

// Summary returns the unit counts of both collections.
func (h *BatchHandler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.listing.Counts())
}

// Refresh reloads both collections, or only the one named by ?kind=.
// Partial failures are reported per kind.
func (h *BatchHandler) Refresh(c *gin.Context) {
	kinds := []models.UnitKind{models.KindGrouped, models.KindUngrouped}

	if raw := c.Query("kind"); raw != "" {
		kind, err := models.ParseUnitKind(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kinds = []models.UnitKind{kind}
		if _, err := h.listing.Fetch(c.Request.Context(), kind); err != nil {
			h.logger.Warn("listing refresh failed", zap.Error(err))
		}
	} else if err := h.listing.Refresh(c.Request.Context()); err != nil {
		h.logger.Warn("listing refresh incomplete", zap.Error(err))
	}

	failures := gin.H{}
	for _, kind := range kinds {
		if state := h.listing.Collection(kind); state.Err != nil {
			failures[string(kind)] = state.Err.Error()
		}
	}

	status := http.StatusOK
	if len(failures) == len(kinds) {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"summary": h.listing.Counts(), "errors": failures})
}

// Detail returns the projection of one unit.
func (h *BatchHandler) Detail(c *gin.Context) {
	ref, ok := h.bindRef(c)
	if !ok {
		return
	}

	detail, err := h.details.Detail(ref)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Save persists one field of a unit as soon as it was edited.
func (h *BatchHandler) Save(c *gin.Context) {
	ref, ok := h.bindRef(c)
	if !ok {
		return
	}

	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid save payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	raw, err := rawValue(req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": req.Field})
		return
	}

	result, err := h.saver.SaveField(c.Request.Context(), ref, req.Field, raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": result.Message, "detail": result.Detail})
}

// Remove hides a unit from this service. The backend keeps the record.
func (h *BatchHandler) Remove(c *gin.Context) {
	ref, ok := h.bindRef(c)
	if !ok {
		return
	}

	if !h.listing.RemoveUnit(ref) {
		h.fail(c, fmt.Errorf("remove %s: %w", ref, models.ErrUnknownUnit))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"removed":   true,
		"localOnly": true,
		"message":   "removed from this view only, the backend record is unchanged",
	})
}

// UnitHistory lists archived snapshots of one unit, newest first.
func (h *BatchHandler) UnitHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit archive is disabled"})
		return
	}

	ref, ok := h.bindRef(c)
	if !ok {
		return
	}

	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
		return
	}

	snapshots, err := h.history.History(c.Request.Context(), ref.Kind, ref.ID, limit)
	if err != nil {
		h.logger.Error("failed reading snapshot history", zap.Stringer("unit", ref), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to read history"})
		return
	}
	if snapshots == nil {
		snapshots = []models.BatchSnapshot{}
	}
	c.JSON(http.StatusOK, snapshots)
}

// ShiftWorkbook streams the shift report as an XLSX download.
func (h *BatchHandler) ShiftWorkbook(c *gin.Context) {
	fileName := fmt.Sprintf("shift_%s.xlsx", time.Now().Format("2006-01-02_1504"))

	c.Header("Content-Type", workbookContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	if err := h.workbooks.WriteWorkbook(c.Writer); err != nil {
		h.logger.Error("failed writing shift workbook", zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
}

func (h *BatchHandler) collection(c *gin.Context, kind models.UnitKind) {
	state := h.listing.Collection(kind)

	resp := collectionResponse{
		Kind:    kind,
		Loading: state.Loading,
		Units:   h.details.Details(kind),
	}
	if !state.FetchedAt.IsZero() {
		fetched := state.FetchedAt
		resp.FetchedAt = &fetched
	}
	if resp.Units == nil {
		resp.Units = []models.BatchDetail{}
	}

	status := http.StatusOK
	if state.Err != nil {
		resp.Error = state.Err.Error()
		if len(resp.Units) == 0 {
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, resp)
}

// rawValue flattens the JSON value of a save request into the text the
// coordinator normalizes. Numbers keep their literal form.
func rawValue(msg json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text, nil
	}

	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err == nil {
		return number.String(), nil
	}
	return "", errors.New("value must be a string, a number or null")
}

func (h *BatchHandler) bindRef(c *gin.Context) (models.UnitRef, bool) {
	kind, err := models.ParseUnitKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.UnitRef{}, false
	}
	return models.UnitRef{Kind: kind, ID: c.Param("id")}, true
}

func (h *BatchHandler) fail(c *gin.Context, err error) {
	var (
		validation   *models.ValidationError
		precondition *models.PreconditionError
		rejection    *models.ServerRejectionError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &precondition):
		c.JSON(http.StatusConflict, gin.H{"error": precondition.Error(), "field": precondition.Field, "stage": precondition.Stage})
	case errors.Is(err, models.ErrUnknownUnit):
		c.JSON(http.StatusNotFound, gin.H{"error": "unit not found"})
	case errors.As(err, &rejection):
		c.JSON(http.StatusBadGateway, gin.H{"error": rejection.Message})
	case errors.Is(err, models.ErrTransport):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to save. Please try again."})
	case errors.Is(err, models.ErrSaveInFlight):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "another save of this field is still running"})
	case errors.Is(err, context.Canceled):
		h.logger.Debug("request canceled by caller", zap.Error(err))
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		h.logger.Error("unexpected handler error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
