package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/mouldtrack/internal/config"
	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

const (
	groupsPath          = "production/groups"
	ungroupedPath       = "production/ungrouped-items"
	groupFieldPath      = "production/groups/field"
	ungroupedFieldPath  = "production/items/field"
	defaultErrorMessage = "update failed"
)

// Client exposes the production backend operations used by the tracker.
type Client interface {
	FetchGroups(ctx context.Context) ([]GroupDTO, error)
	FetchUngrouped(ctx context.Context) ([]ItemDTO, error)
	UpdateGroupField(ctx context.Context, req UpdateFieldRequest) (*UpdateResult, error)
	UpdateItemField(ctx context.Context, req UpdateFieldRequest) (*UpdateResult, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a production API client from the backend configuration.
// A configured token is sent as a bearer token.
func NewClient(cfg config.BackendConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	if cfg.Token != "" {
		restyClient.SetAuthToken(cfg.Token)
	}

	return &APIClient{httpClient: restyClient}
}

var _ Client = (*APIClient)(nil)

// ItemDTO is a catalog item as returned by the backend. Ungrouped items also
// carry their own batch fields.
type ItemDTO struct {
	ID                string              `json:"_id"`
	ItemName          string              `json:"itemName"`
	QtyPerBatch       decimal.Decimal     `json:"qtyPerBatch"`
	MouldingStartedAt *time.Time          `json:"mouldingStartedAt"`
	MouldingEndedAt   *time.Time          `json:"mouldingEndedAt"`
	ProductionLoss    decimal.NullDecimal `json:"productionLoss"`
	QtyAchieved       decimal.NullDecimal `json:"qtyAchieved"`
	Status            string              `json:"status"`
}

// GroupDTO is a production group with its member items.
type GroupDTO struct {
	ID                string              `json:"_id"`
	GroupName         string              `json:"groupName"`
	Items             []ItemDTO           `json:"items"`
	TotalItems        int                 `json:"totalItems"`
	MouldingStartedAt *time.Time          `json:"mouldingStartedAt"`
	MouldingEndedAt   *time.Time          `json:"mouldingEndedAt"`
	ProductionLoss    decimal.NullDecimal `json:"productionLoss"`
	QtyAchieved       decimal.NullDecimal `json:"qtyAchieved"`
	Status            string              `json:"status"`
}

// UpdateFieldRequest persists a single field of one unit.
type UpdateFieldRequest struct {
	UnitID string
	Field  models.Field
	// Value is an RFC3339 string, a json.Number, or nil to clear.
	Value any
}

// UpdateResult is the backend's confirmation of a field update.
type UpdateResult struct {
	Message string
	// Values holds the canonical value of every batch field the backend echoed.
	Values      map[models.Field]json.RawMessage
	QtyAchieved *decimal.Decimal
	Status      string
}

type listEnvelope[T any] struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Data    []T    `json:"data"`
}

type apiError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e *apiError) text() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// FetchGroups lists the production groups with their member items.
func (c *APIClient) FetchGroups(ctx context.Context) ([]GroupDTO, error) {
	return fetchList[GroupDTO](ctx, c.httpClient, groupsPath)
}

// FetchUngrouped lists catalog items that are not part of any group.
func (c *APIClient) FetchUngrouped(ctx context.Context) ([]ItemDTO, error) {
	return fetchList[ItemDTO](ctx, c.httpClient, ungroupedPath)
}

func fetchList[T any](ctx context.Context, httpClient *resty.Client, path string) ([]T, error) {
	result := new(listEnvelope[T])
	apiErr := new(apiError)

	resp, err := httpClient.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(result).
		SetError(apiErr).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", models.ErrTransport, path, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("production api error: code=%d, message=%s", resp.StatusCode(), apiErr.text())
	}
	if result.Success != nil && !*result.Success {
		return nil, fmt.Errorf("production api error: %s", result.Message)
	}

	return result.Data, nil
}

// UpdateGroupField sends {groupId, field, value}. The backend answers with the
// updated fields at the top level of the body.
func (c *APIClient) UpdateGroupField(ctx context.Context, req UpdateFieldRequest) (*UpdateResult, error) {
	payload := map[string]any{
		"groupId": req.UnitID,
		"field":   string(req.Field),
		"value":   req.Value,
	}

	body, err := c.patch(ctx, groupFieldPath, payload)
	if err != nil {
		return nil, err
	}
	return decodeUpdate(body, body)
}

// UpdateItemField sends {itemId, field, value}. The backend answers with the
// updated fields nested under data.
func (c *APIClient) UpdateItemField(ctx context.Context, req UpdateFieldRequest) (*UpdateResult, error) {
	payload := map[string]any{
		"itemId": req.UnitID,
		"field":  string(req.Field),
		"value":  req.Value,
	}

	body, err := c.patch(ctx, ungroupedFieldPath, payload)
	if err != nil {
		return nil, err
	}

	var data map[string]json.RawMessage
	if raw, ok := body["data"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode update data: %w", err)
		}
	}
	return decodeUpdate(body, data)
}

func (c *APIClient) patch(ctx context.Context, path string, payload map[string]any) (map[string]json.RawMessage, error) {
	var body map[string]json.RawMessage
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetBody(payload).
		SetResult(&body).
		SetError(apiErr).
		Patch(path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: patch %s: %v", models.ErrTransport, path, err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError && apiErr.text() == "" {
		return nil, fmt.Errorf("%w: patch %s: status %d", models.ErrTransport, path, resp.StatusCode())
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, &models.ServerRejectionError{Message: apiErr.text()}
	}

	return body, nil
}

// decodeUpdate reads the envelope from env and the field values from fields.
func decodeUpdate(env, fields map[string]json.RawMessage) (*UpdateResult, error) {
	var success bool
	if raw, ok := env["success"]; ok {
		if err := json.Unmarshal(raw, &success); err != nil {
			return nil, fmt.Errorf("decode success flag: %w", err)
		}
	}

	var message string
	if raw, ok := env["message"]; ok && !isNull(raw) {
		_ = json.Unmarshal(raw, &message)
	}

	if !success {
		if message == "" {
			message = defaultErrorMessage
		}
		return nil, &models.ServerRejectionError{Message: message}
	}

	result := &UpdateResult{
		Message: message,
		Values:  make(map[models.Field]json.RawMessage),
	}

	for _, field := range []models.Field{models.FieldMouldingStartedAt, models.FieldMouldingEndedAt, models.FieldProductionLoss} {
		if raw, ok := fields[string(field)]; ok {
			result.Values[field] = raw
		}
	}

	// Single-field responses name the field and carry its value separately.
	if raw, ok := fields["field"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			if field, err := models.ParseField(name); err == nil {
				if value, ok := fields["value"]; ok {
					if _, seen := result.Values[field]; !seen {
						result.Values[field] = value
					}
				}
			}
		}
	}

	if raw, ok := fields["qtyAchieved"]; ok && !isNull(raw) {
		var achieved decimal.Decimal
		if err := achieved.UnmarshalJSON(raw); err != nil {
			return nil, fmt.Errorf("decode qtyAchieved: %w", err)
		}
		result.QtyAchieved = &achieved
	}

	if raw, ok := fields["status"]; ok && !isNull(raw) {
		_ = json.Unmarshal(raw, &result.Status)
	}

	return result, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
