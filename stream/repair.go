// Package stream provides a DynamoDB Streams handler that repairs
// interrupted cascade deletes. The cascade in the store is not atomic;
// when a person profile item is removed, this handler re-runs the
// cascade so children orphaned by a crash or network error are cleaned
// up. Re-running is safe because the cascade is idempotent.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/rolodex/keys"
	"github.com/jacentio/rolodex/store"
)

// Handler processes DynamoDB stream events for cascade repair.
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewHandler creates a stream handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleCascadeRepair processes stream records, re-running the delete
// cascade for every removed person profile. Designed to be used as an
// AWS Lambda handler.
func (h *Handler) HandleCascadeRepair(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "REMOVE" {
		return nil
	}

	pk := getStringAttr(record.Change.Keys, store.AttrPK)
	sk := getStringAttr(record.Change.Keys, store.AttrSK)

	parsed, err := keys.ParseKey(pk, sk)
	if err != nil {
		// Not a rolodex-shaped key; another writer shares the table.
		h.logger.Warn("ignoring record with unrecognized key", "pk", pk, "sk", sk)
		return nil
	}
	if parsed.Type != keys.TypePerson {
		return nil
	}

	h.logger.Info("repairing cascade for removed person", "personId", parsed.PersonID)

	deleted, err := h.store.DeletePersonCascade(ctx, parsed.PersonID)
	var partial *store.PartialCascadeError
	if errors.As(err, &partial) {
		// Some children survived; surface the error so the Lambda
		// retries and the cascade runs again.
		return fmt.Errorf("cascade repair incomplete: %w", err)
	}
	if err != nil {
		return fmt.Errorf("cascade repair: %w", err)
	}

	h.logger.Info("cascade repair completed",
		"personId", parsed.PersonID,
		"orphansDeleted", deleted,
	)
	return nil
}

func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
