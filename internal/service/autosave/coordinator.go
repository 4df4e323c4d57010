// Package autosave persists single batch fields as soon as they change.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/config"
	"github.com/mamadbah2/mouldtrack/internal/domain/models"
	"github.com/mamadbah2/mouldtrack/internal/service/detail"
	"github.com/mamadbah2/mouldtrack/internal/store"
	"github.com/mamadbah2/mouldtrack/pkg/clients/production"
)

const (
	recoveryTimeout = 10 * time.Second
	archiveTimeout  = 5 * time.Second
)

// Backend is the update subset of the production API.
type Backend interface {
	UpdateGroupField(ctx context.Context, req production.UpdateFieldRequest) (*production.UpdateResult, error)
	UpdateItemField(ctx context.Context, req production.UpdateFieldRequest) (*production.UpdateResult, error)
}

// Listing resolves listed units and restores a unit from a fresh fetch.
type Listing interface {
	Unit(ref models.UnitRef) (models.ProductionUnit, bool)
	RevertUnit(ctx context.Context, ref models.UnitRef) error
}

// Archiver stores audit snapshots of confirmed saves.
type Archiver interface {
	SaveSnapshot(ctx context.Context, snapshot models.BatchSnapshot) error
}

// Options tunes the coordinator.
type Options struct {
	Timeout        time.Duration
	RevertStrategy string
	Location       *time.Location
}

// Result describes a confirmed save.
type Result struct {
	Ref     models.UnitRef
	Field   models.Field
	Value   models.FieldValue
	Record  models.BatchRecord
	Detail  models.BatchDetail
	Message string
}

// Coordinator applies a field edit optimistically, persists it, and then
// reconciles with the backend's answer or undoes the edit.
type Coordinator struct {
	backend  Backend
	store    *store.Store
	listing  Listing
	notifier Notifier
	archiver Archiver
	opts     Options
	locks    *keyLocks
	logger   *zap.Logger
	now      func() time.Time
}

// NewCoordinator wires a coordinator. A nil notifier logs notifications.
func NewCoordinator(backend Backend, records *store.Store, listing Listing, notifier Notifier, logger *zap.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RevertStrategy == "" {
		opts.RevertStrategy = config.RevertRollback
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Coordinator{
		backend:  backend,
		store:    records,
		listing:  listing,
		notifier: notifier,
		opts:     opts,
		locks:    newKeyLocks(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetArchiver enables audit snapshots of every confirmed save.
func (c *Coordinator) SetArchiver(archiver Archiver) {
	c.archiver = archiver
}

// SaveField normalizes raw, applies it locally and persists it. Saves of the
// same unit and field run one at a time.
func (c *Coordinator) SaveField(ctx context.Context, ref models.UnitRef, fieldName, raw string) (*Result, error) {
	field, err := models.ParseField(fieldName)
	if err != nil {
		return nil, err
	}

	unit, ok := c.listing.Unit(ref)
	if !ok {
		return nil, fmt.Errorf("save %s: %w", ref, models.ErrUnknownUnit)
	}

	value, err := c.normalize(field, raw)
	if err != nil {
		return nil, err
	}

	unlock, err := c.locks.acquire(ctx, lockKey{ref: ref, field: field})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSaveInFlight, err)
	}
	defer unlock()

	edit, err := c.store.ApplyLocalPatch(ref, value)
	if err != nil {
		c.logger.Debug("edit rejected locally", zap.Stringer("unit", ref), zap.String("field", string(field)), zap.Error(err))
		return nil, err
	}

	saveCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	result, err := c.send(saveCtx, ref, value)
	if err != nil && errors.Is(saveCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, models.ErrTransport) {
		err = fmt.Errorf("%w: save timed out after %s", models.ErrTransport, c.opts.Timeout)
	}
	cancel()

	if err != nil {
		c.undo(ctx, edit, err)
		return nil, err
	}

	fields := c.serverFields(ref, value, result)
	record := c.store.Reconcile(ref, fields)
	view := detail.Project(unit, record)

	if result.QtyAchieved != nil && !result.QtyAchieved.Equal(view.AchievedQuantity) {
		c.logger.Warn("backend achieved quantity differs from local computation",
			zap.Stringer("unit", ref),
			zap.String("backend", result.QtyAchieved.String()),
			zap.String("local", view.AchievedQuantity.String()))
	}

	message := result.Message
	if message == "" {
		message = fmt.Sprintf("%s saved", field)
	}
	c.notifier.Notify(ctx, Notification{Level: LevelSuccess, Ref: ref, Field: field, Message: message})
	c.archive(ctx, view, field)

	return &Result{
		Ref:     ref,
		Field:   field,
		Value:   record.Value(field),
		Record:  record,
		Detail:  view,
		Message: message,
	}, nil
}

func (c *Coordinator) send(ctx context.Context, ref models.UnitRef, value models.FieldValue) (*production.UpdateResult, error) {
	req := production.UpdateFieldRequest{
		UnitID: ref.ID,
		Field:  value.Field,
		Value:  wireValue(value),
	}

	if ref.Kind == models.KindGrouped {
		return c.backend.UpdateGroupField(ctx, req)
	}
	return c.backend.UpdateItemField(ctx, req)
}

// serverFields collects the canonical values the backend echoed. The saved
// field falls back to the locally normalized value when it was not echoed.
func (c *Coordinator) serverFields(ref models.UnitRef, sent models.FieldValue, result *production.UpdateResult) store.ServerFields {
	fields := store.ServerFields{Status: result.Status, Achieved: result.QtyAchieved}

	for _, field := range []models.Field{models.FieldMouldingStartedAt, models.FieldMouldingEndedAt, models.FieldProductionLoss} {
		raw, echoed := result.Values[field]
		if !echoed {
			if field == sent.Field {
				fields.Values = append(fields.Values, sent)
			}
			continue
		}

		value, present, err := decodeServerValue(field, raw, c.opts.Location)
		if err != nil {
			c.logger.Warn("ignoring malformed canonical value", zap.Stringer("unit", ref), zap.Error(err))
		}
		if err != nil || !present {
			if field == sent.Field {
				fields.Values = append(fields.Values, sent)
			}
			continue
		}
		fields.Values = append(fields.Values, value)
	}

	return fields
}

// undo reverts a failed edit and tells the user why.
func (c *Coordinator) undo(ctx context.Context, edit models.PendingEdit, cause error) {
	recoverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
	defer cancel()

	switch c.opts.RevertStrategy {
	case config.RevertRefetch:
		if err := c.listing.RevertUnit(recoverCtx, edit.Ref); err != nil {
			c.logger.Warn("refetch after failed save did not complete, rolling back locally",
				zap.Stringer("unit", edit.Ref), zap.Error(err))
			c.store.Rollback(edit)
		}
	default:
		if !c.store.Rollback(edit) {
			c.logger.Debug("rollback skipped, field changed since edit", zap.Stringer("unit", edit.Ref))
		}
	}

	message := "Failed to save. Please try again."
	var rejection *models.ServerRejectionError
	if errors.As(cause, &rejection) && rejection.Message != "" {
		message = rejection.Message
	}

	c.logger.Error("save failed",
		zap.Stringer("unit", edit.Ref),
		zap.String("field", string(edit.Next.Field)),
		zap.Error(cause))
	c.notifier.Notify(ctx, Notification{Level: LevelError, Ref: edit.Ref, Field: edit.Next.Field, Message: message})
}

func (c *Coordinator) archive(ctx context.Context, view models.BatchDetail, field models.Field) {
	if c.archiver == nil {
		return
	}

	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	snapshot := models.NewBatchSnapshot(uuid.NewString(), view, field, c.now().UTC())
	if err := c.archiver.SaveSnapshot(archiveCtx, snapshot); err != nil {
		c.logger.Error("failed to archive batch snapshot", zap.Stringer("unit", view.Ref), zap.Error(err))
	}
}
