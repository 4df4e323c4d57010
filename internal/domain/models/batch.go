package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Field enumerates the auto-saved fields of a batch record.
type Field string

const (
	FieldMouldingStartedAt Field = "mouldingStartedAt"
	FieldMouldingEndedAt   Field = "mouldingEndedAt"
	FieldProductionLoss    Field = "productionLoss"
)

// ParseField validates a wire field name.
func ParseField(name string) (Field, error) {
	switch Field(name) {
	case FieldMouldingStartedAt, FieldMouldingEndedAt, FieldProductionLoss:
		return Field(name), nil
	default:
		return "", &ValidationError{Field: "field", Reason: fmt.Sprintf("unsupported field %q", name)}
	}
}

// IsTimestamp reports whether the field carries an instant.
func (f Field) IsTimestamp() bool {
	return f == FieldMouldingStartedAt || f == FieldMouldingEndedAt
}

// FieldValue is the normalized value of a single field. At is used by the
// timestamp fields (nil clears), Loss by productionLoss.
type FieldValue struct {
	Field Field
	At    *time.Time
	Loss  decimal.Decimal
}

// TimeValue builds a timestamp field value; a nil instant clears the field.
func TimeValue(field Field, at *time.Time) FieldValue {
	if at != nil {
		t := *at
		at = &t
	}
	return FieldValue{Field: field, At: at}
}

// LossValue builds a productionLoss field value.
func LossValue(loss decimal.Decimal) FieldValue {
	return FieldValue{Field: FieldProductionLoss, Loss: loss}
}

// Equal compares two values of the same field.
func (v FieldValue) Equal(other FieldValue) bool {
	if v.Field != other.Field {
		return false
	}
	if v.Field == FieldProductionLoss {
		return v.Loss.Equal(other.Loss)
	}
	if v.At == nil || other.At == nil {
		return v.At == nil && other.At == nil
	}
	return v.At.Equal(*other.At)
}

func (v FieldValue) String() string {
	if v.Field == FieldProductionLoss {
		return v.Loss.String()
	}
	if v.At == nil {
		return ""
	}
	return v.At.UTC().Format(time.RFC3339)
}

// Stage names the lifecycle position of a batch.
type Stage string

const (
	StageNotStarted   Stage = "not_started"
	StageStarted      Stage = "started"
	StageEnded        Stage = "ended"
	StageLossRecorded Stage = "loss_recorded"
)

// BatchState is the lifecycle of a batch as a closed set of variants:
// NotStarted, Started, Ended or LossRecorded.
type BatchState interface {
	Stage() Stage
	batchState()
}

type NotStarted struct{}

type Started struct {
	Start time.Time
}

type Ended struct {
	Start time.Time
	End   time.Time
}

type LossRecorded struct {
	Start time.Time
	End   time.Time
	Loss  decimal.Decimal
}

func (NotStarted) Stage() Stage   { return StageNotStarted }
func (Started) Stage() Stage      { return StageStarted }
func (Ended) Stage() Stage        { return StageEnded }
func (LossRecorded) Stage() Stage { return StageLossRecorded }

func (NotStarted) batchState()   {}
func (Started) batchState()      {}
func (Ended) batchState()        {}
func (LossRecorded) batchState() {}

// BatchRecord is the client-side view of one unit's production run.
// The zero value is the all-absent NotStarted record.
type BatchRecord struct {
	startedAt *time.Time
	endedAt   *time.Time
	loss      *decimal.Decimal

	// Status is the backend's label for the unit, when it reports one.
	Status string
	// ServerAchieved is the quantity the backend last reported. Kept for
	// audit only; achieved quantity is always recomputed locally.
	ServerAchieved *decimal.Decimal
}

// NewBatchRecord builds a record from persisted fields. An end timestamp
// without a start cannot be represented and is dropped.
func NewBatchRecord(start, end *time.Time, loss *decimal.Decimal) BatchRecord {
	var r BatchRecord
	r.startedAt = copyTime(start)
	if r.startedAt != nil {
		r.endedAt = copyTime(end)
	}
	if loss != nil {
		l := *loss
		r.loss = &l
	}
	return r
}

// StartedAt returns the moulding start, if any.
func (r BatchRecord) StartedAt() *time.Time { return copyTime(r.startedAt) }

// EndedAt returns the moulding end, if any.
func (r BatchRecord) EndedAt() *time.Time { return copyTime(r.endedAt) }

// Loss returns the production loss held by the record, including a stale
// loss carried before both timestamps existed.
func (r BatchRecord) Loss() *decimal.Decimal {
	if r.loss == nil {
		return nil
	}
	l := *r.loss
	return &l
}

// State derives the lifecycle variant from the stored fields.
func (r BatchRecord) State() BatchState {
	switch {
	case r.startedAt == nil:
		return NotStarted{}
	case r.endedAt == nil:
		return Started{Start: *r.startedAt}
	case r.loss == nil:
		return Ended{Start: *r.startedAt, End: *r.endedAt}
	default:
		return LossRecorded{Start: *r.startedAt, End: *r.endedAt, Loss: *r.loss}
	}
}

// LossEditable reports whether production loss may be edited.
func (r BatchRecord) LossEditable() bool {
	return r.startedAt != nil && r.endedAt != nil
}

// Value returns the current value of one field.
func (r BatchRecord) Value(field Field) FieldValue {
	switch field {
	case FieldMouldingStartedAt:
		return TimeValue(field, r.startedAt)
	case FieldMouldingEndedAt:
		return TimeValue(field, r.endedAt)
	default:
		if r.loss == nil {
			return FieldValue{Field: FieldProductionLoss}
		}
		return LossValue(*r.loss)
	}
}

// Apply performs a guarded transition for a locally initiated edit.
func (r BatchRecord) Apply(v FieldValue) (BatchRecord, error) {
	switch v.Field {
	case FieldMouldingStartedAt:
		if v.At == nil && r.endedAt != nil {
			return r, &PreconditionError{Field: v.Field, Stage: r.State().Stage(), Reason: "cannot clear start of an ended batch"}
		}
		if v.At != nil && r.endedAt != nil && v.At.After(*r.endedAt) {
			return r, &PreconditionError{Field: v.Field, Stage: r.State().Stage(), Reason: "start must not be after end"}
		}
	case FieldMouldingEndedAt:
		if v.At != nil && r.startedAt == nil {
			return r, &PreconditionError{Field: v.Field, Stage: r.State().Stage(), Reason: "batch has not started"}
		}
		if v.At != nil && v.At.Before(*r.startedAt) {
			return r, &PreconditionError{Field: v.Field, Stage: r.State().Stage(), Reason: "end must not be before start"}
		}
	case FieldProductionLoss:
		if !r.LossEditable() {
			return r, &PreconditionError{Field: v.Field, Stage: r.State().Stage(), Reason: "batch has not ended"}
		}
		if v.Loss.IsNegative() {
			return r, &ValidationError{Field: string(v.Field), Reason: "loss must not be negative"}
		}
	default:
		return r, &ValidationError{Field: string(v.Field), Reason: "unsupported field"}
	}
	return r.With(v), nil
}

// With writes a field without lifecycle guards. It is used for values the
// backend confirmed and for restoring captured values. Clearing the start
// also clears the end so the record stays representable.
func (r BatchRecord) With(v FieldValue) BatchRecord {
	switch v.Field {
	case FieldMouldingStartedAt:
		r.startedAt = copyTime(v.At)
		if r.startedAt == nil {
			r.endedAt = nil
		}
	case FieldMouldingEndedAt:
		if r.startedAt != nil {
			r.endedAt = copyTime(v.At)
		}
	case FieldProductionLoss:
		l := v.Loss
		r.loss = &l
	}
	return r
}

// WithoutLoss returns the record with no production loss held.
func (r BatchRecord) WithoutLoss() BatchRecord {
	r.loss = nil
	return r
}

// PendingEdit captures one optimistic edit so it can be committed or rolled
// back as a single store operation.
type PendingEdit struct {
	Ref      UnitRef
	Previous FieldValue
	// HadLoss records whether a loss existed before a productionLoss edit.
	HadLoss bool
	Next    FieldValue
	Seq     uint64
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
