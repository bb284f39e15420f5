package ckan

import (
	"context"
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const DefaultUpsertBatchSize int = 5

type datastoreCreateRequest struct {
	ResourceID string           `json:"resource_id"`
	Fields     []Field          `json:"fields,omitempty"`
	PrimaryKey []string         `json:"primary_key,omitempty"`
	Indexes    []string         `json:"indexes,omitempty"`
	Records    []map[string]any `json:"records"`
	Force      bool             `json:"force"`
}

// UpsertRecords writes records to the datastore table of a resource in
// batches of batchSize. The primary key lets repeated runs replace rows
// instead of appending them. Batches are independent of each other: when a
// batch fails the batches before it stay in the datastore.
func (c *Client) UpsertRecords(ctx context.Context, resourceID string, records []map[string]any, primaryKey []string, fields []Field, batchSize int) error {
	if resourceID == "" {
		return fmt.Errorf("no resource id (%w)", ErrInternal)
	}

	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}

	logger := logging.GetFromContext(ctx).With("resource_id", resourceID)

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))

		err := c.Action(ctx, TypeDatastore, ActionCreate, datastoreCreateRequest{
			ResourceID: resourceID,
			Fields:     fields,
			PrimaryKey: primaryKey,
			Indexes:    primaryKey,
			Records:    records[start:end],
			Force:      true,
		}, nil)
		if err != nil {
			return fmt.Errorf("failed to upsert records %d to %d: %w", start, end-1, err)
		}

		logger.Debug("upserted records", "from", start, "to", end-1)
	}

	return nil
}
