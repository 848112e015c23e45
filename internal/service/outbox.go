package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"geografica/internal/apiclient"
	"geografica/internal/model"
)

const (
	outboxBatchSize = 500
	// outboxMaxAttempts bounds retries of batches the API rejects
	outboxMaxAttempts = 5
)

// RecordWriter is the write side of the location history client
type RecordWriter interface {
	Create(ctx context.Context, childID int64, req model.CreateLocationRecordRequest) (*model.LocationRecord, error)
	Sync(ctx context.Context, childID int64, records []model.CreateLocationRecordRequest) ([]model.LocationRecord, error)
}

// FlushResult summarizes one flush
type FlushResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped"`
}

// Outbox stores location records the API could not be reached for and
// uploads them later in per-child batches.
type Outbox struct {
	store  OutboxStore
	api    RecordWriter
	logger *zap.Logger

	// flushMu keeps flushes from overlapping
	flushMu sync.Mutex
}

// NewOutbox creates an outbox
func NewOutbox(store OutboxStore, api RecordWriter, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{store: store, api: api, logger: logger}
}

// Record creates the record right away. When the API is unreachable the
// record is queued as offline and queued is true.
func (o *Outbox) Record(ctx context.Context, childID int64, req model.CreateLocationRecordRequest) (*model.LocationRecord, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid location record: %w", err)
	}

	record, err := o.api.Create(ctx, childID, req)
	if err == nil {
		return record, false, nil
	}
	if !apiclient.IsTransport(err) {
		return nil, false, err
	}

	pending := &model.PendingLocation{
		ID:         uuid.New().String(),
		ChildID:    childID,
		CapturedAt: req.CapturedAt,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		CreatedAt:  time.Now(),
	}
	if err := o.store.Add(ctx, pending); err != nil {
		return nil, false, fmt.Errorf("failed to queue location record: %w", err)
	}

	o.logger.Info("Location record queued for sync",
		zap.String("id", pending.ID),
		zap.Int64("child_id", childID),
		zap.Error(err),
	)
	return nil, true, nil
}

// Flush uploads the pending records, one Sync call per child. Rows of a
// failed batch stay queued; batches rejected too often are dropped.
func (o *Outbox) Flush(ctx context.Context) (FlushResult, error) {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	var result FlushResult

	rows, err := o.store.Pending(ctx, outboxBatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to load pending records: %w", err)
	}
	if len(rows) == 0 {
		return result, nil
	}

	order := make([]int64, 0)
	groups := make(map[int64][]model.PendingLocation)
	for _, row := range rows {
		if _, ok := groups[row.ChildID]; !ok {
			order = append(order, row.ChildID)
		}
		groups[row.ChildID] = append(groups[row.ChildID], row)
	}

	for _, childID := range order {
		batch := groups[childID]
		ids := make([]string, len(batch))
		reqs := make([]model.CreateLocationRecordRequest, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
			reqs[i] = batch[i].ToRequest()
		}

		if _, err := o.api.Sync(ctx, childID, reqs); err != nil {
			result.Failed += len(batch)
			o.handleSyncFailure(ctx, childID, batch, ids, err, &result)
			continue
		}

		if err := o.store.Delete(ctx, ids); err != nil {
			return result, fmt.Errorf("failed to remove synced records: %w", err)
		}
		result.Synced += len(batch)
		o.logger.Info("Pending records synced", zap.Int64("child_id", childID), zap.Int("count", len(batch)))
	}

	return result, nil
}

func (o *Outbox) handleSyncFailure(ctx context.Context, childID int64, batch []model.PendingLocation, ids []string, syncErr error, result *FlushResult) {
	o.logger.Warn("Pending record sync failed",
		zap.Int64("child_id", childID),
		zap.Int("count", len(batch)),
		zap.Error(syncErr),
	)

	if apiclient.IsTransport(syncErr) {
		return
	}

	var drop, keep []string
	for _, row := range batch {
		if row.Attempts+1 >= outboxMaxAttempts {
			drop = append(drop, row.ID)
		} else {
			keep = append(keep, row.ID)
		}
	}

	if err := o.store.MarkFailed(ctx, keep, syncErr.Error()); err != nil {
		o.logger.Error("Failed to mark pending records", zap.Error(err))
	}
	if len(drop) > 0 {
		if err := o.store.Delete(ctx, drop); err != nil {
			o.logger.Error("Failed to drop rejected records", zap.Error(err))
			return
		}
		result.Dropped += len(drop)
		o.logger.Error("Dropped pending records rejected by the API",
			zap.Int64("child_id", childID),
			zap.Int("count", len(drop)),
			zap.Strings("ids", drop),
		)
	}
}

// Pending returns the number of queued records
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	return o.store.Count(ctx)
}

// Run flushes periodically until ctx ends
func (o *Outbox) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info("Outbox flusher started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Outbox flusher stopped")
			return
		case <-ticker.C:
			result, err := o.Flush(ctx)
			if err != nil {
				o.logger.Error("Outbox flush failed", zap.Error(err))
				continue
			}
			if result.Synced+result.Failed+result.Dropped > 0 {
				o.logger.Info("Outbox flushed",
					zap.Int("synced", result.Synced),
					zap.Int("failed", result.Failed),
					zap.Int("dropped", result.Dropped),
				)
			}
		}
	}
}
