package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"geografica/internal/model"
)

// QueryTimeLayout is the ISO-8601 form sent in history filters
const QueryTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// HistoryClient reads and writes location records of a child
type HistoryClient struct {
	api *Client
}

// NewHistoryClient creates a location history client
func NewHistoryClient(api *Client) *HistoryClient {
	return &HistoryClient{api: api}
}

func recordsPath(childID int64) string {
	return fmt.Sprintf("/hijos/%d/registros", childID)
}

// List returns the records of a child, optionally bounded by the filter
func (c *HistoryClient) List(ctx context.Context, childID int64, filter model.HistoryFilter) ([]model.LocationRecord, error) {
	query := url.Values{}
	if !filter.Start.IsZero() {
		query.Set("fechaInicio", filter.Start.UTC().Format(QueryTimeLayout))
	}
	if !filter.End.IsZero() {
		query.Set("fechaFin", filter.End.UTC().Format(QueryTimeLayout))
	}

	records := []model.LocationRecord{}
	if err := c.api.do(ctx, http.MethodGet, recordsPath(childID), query, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one record
func (c *HistoryClient) Get(ctx context.Context, childID, recordID int64) (*model.LocationRecord, error) {
	var record model.LocationRecord
	endpoint := fmt.Sprintf("%s/%d", recordsPath(childID), recordID)
	if err := c.api.do(ctx, http.MethodGet, endpoint, nil, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create stores a single record
func (c *HistoryClient) Create(ctx context.Context, childID int64, req model.CreateLocationRecordRequest) (*model.LocationRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid location record: %w", err)
	}

	var record model.LocationRecord
	if err := c.api.do(ctx, http.MethodPost, recordsPath(childID), nil, req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Sync uploads a batch of records captured while offline
func (c *HistoryClient) Sync(ctx context.Context, childID int64, records []model.CreateLocationRecordRequest) ([]model.LocationRecord, error) {
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid location record %d: %w", i, err)
		}
	}

	created := []model.LocationRecord{}
	body := model.SyncLocationRecordsRequest{Records: records}
	if err := c.api.do(ctx, http.MethodPost, recordsPath(childID)+"/sync", nil, body, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// Update replaces a record via PUT
func (c *HistoryClient) Update(ctx context.Context, childID, recordID int64, req model.CreateLocationRecordRequest) (*model.LocationRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid location record: %w", err)
	}

	var record model.LocationRecord
	endpoint := fmt.Sprintf("%s/%d", recordsPath(childID), recordID)
	if err := c.api.do(ctx, http.MethodPut, endpoint, nil, req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes a record
func (c *HistoryClient) Delete(ctx context.Context, childID, recordID int64) error {
	endpoint := fmt.Sprintf("%s/%d", recordsPath(childID), recordID)
	return c.api.do(ctx, http.MethodDelete, endpoint, nil, nil, nil)
}
