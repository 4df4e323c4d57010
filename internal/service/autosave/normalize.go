package autosave

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

// Layouts accepted for user-entered timestamps, datetime-local first.
var timestampLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// normalize converts the user-facing representation of a field into its value.
func (c *Coordinator) normalize(field models.Field, raw string) (models.FieldValue, error) {
	raw = strings.TrimSpace(raw)

	if field.IsTimestamp() {
		if raw == "" {
			return models.TimeValue(field, nil), nil
		}
		at, err := parseTimestamp(raw, c.opts.Location)
		if err != nil {
			return models.FieldValue{}, &models.ValidationError{Field: string(field), Reason: err.Error()}
		}
		return models.TimeValue(field, &at), nil
	}

	if raw == "" {
		return models.LossValue(decimal.Zero), nil
	}

	loss, err := decimal.NewFromString(raw)
	if err != nil || loss.IsNegative() {
		// Malformed input is coerced rather than rejected.
		c.logger.Warn("production loss coerced to zero", zap.String("input", raw))
		return models.LossValue(decimal.Zero), nil
	}
	return models.LossValue(loss), nil
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if at, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return at, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// wireValue is the JSON value sent to the backend for a field.
func wireValue(v models.FieldValue) any {
	if v.Field == models.FieldProductionLoss {
		return json.Number(v.Loss.String())
	}
	if v.At == nil {
		return nil
	}
	return v.At.UTC().Format(time.RFC3339Nano)
}

// decodeServerValue reads a canonical value echoed by the backend. A null
// loss carries no information and is reported as absent.
func decodeServerValue(field models.Field, raw json.RawMessage, loc *time.Location) (models.FieldValue, bool, error) {
	null := len(raw) == 0 || string(raw) == "null"

	if field == models.FieldProductionLoss {
		if null {
			return models.FieldValue{}, false, nil
		}
		var loss decimal.Decimal
		if err := loss.UnmarshalJSON(raw); err != nil {
			return models.FieldValue{}, false, fmt.Errorf("decode %s: %w", field, err)
		}
		return models.LossValue(loss), true, nil
	}

	if null {
		return models.TimeValue(field, nil), true, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return models.FieldValue{}, false, fmt.Errorf("decode %s: %w", field, err)
	}
	if strings.TrimSpace(text) == "" {
		return models.TimeValue(field, nil), true, nil
	}
	at, err := parseTimestamp(text, loc)
	if err != nil {
		return models.FieldValue{}, false, fmt.Errorf("decode %s: %w", field, err)
	}
	return models.TimeValue(field, &at), true, nil
}
