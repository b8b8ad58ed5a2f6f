// Package stream provides DynamoDB Streams handlers that keep relations
// consistent when entities are removed outside the Store.
//
// Items removed by DynamoDB TTL expiry or by hand never went through
// store.Store.Delete, so their children, siblings and free relations are
// still in place. The handler runs store.Store.Cleanup for every REMOVE
// record, which applies the declared behaviors to what is left. Records whose
// key holds an entity again are skipped. Records whose cleanup is blocked by
// an Error relation are logged and dropped rather than retried, since a
// retry would fail the same way and hold up the shard.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/antler/internal/keyspace"
	"github.com/jacentio/antler/store"
)

// ttlPrincipal is the user identity DynamoDB sets on records removed by TTL.
const ttlPrincipal = "dynamodb.amazonaws.com"

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	store     *store.Store
	namespace string
	logger    *slog.Logger
}

// NewHandler creates a new stream handler for the items of one kv.Dynamo
// namespace.
func NewHandler(s *store.Store, namespace string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:     s,
		namespace: namespace,
		logger:    logger,
	}
}

// HandleRemovals processes DynamoDB stream events, cleaning up the dependents
// of removed entities.
// This function is designed to be used as an AWS Lambda handler. The stream
// must include keys (any StreamViewType does).
func (h *Handler) HandleRemovals(ctx context.Context, event events.DynamoDBEvent) error {
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

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "REMOVE" {
		return nil
	}

	namespace, bucket, key, ok := ParseStreamKey(record.Change.Keys)
	if !ok {
		h.logger.Warn("skipping record with unexpected key",
			"eventID", record.EventID,
		)
		return nil
	}
	if namespace != h.namespace || h.store.Config().IsAuxiliary(bucket) {
		return nil
	}
	if !h.store.Registry().IsRegistered(bucket) {
		h.logger.Debug("skipping unregistered store",
			"store", bucket,
		)
		return nil
	}

	h.logger.Info("processing removal",
		"store", bucket,
		"key", fmt.Sprintf("%x", key),
		"ttl", isTTLExpiry(record),
	)

	cleaned, err := h.store.Cleanup(ctx, bucket, key)
	if errors.Is(err, store.ErrDeletionBlocked) {
		h.logger.Warn("dependents block cleanup",
			"store", bucket,
			"key", fmt.Sprintf("%x", key),
			"error", err,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cleanup %s: %w", bucket, err)
	}
	if !cleaned {
		h.logger.Info("entity saved again, skipping cleanup",
			"store", bucket,
			"key", fmt.Sprintf("%x", key),
		)
	}
	return nil
}

// ParseStreamKey extracts the namespace, store and entity key from the keys
// of a stream record written by kv.Dynamo.
func ParseStreamKey(keys map[string]events.DynamoDBAttributeValue) (namespace, bucket string, key []byte, ok bool) {
	pk := getStringAttr(keys, "pk")
	key = getBinaryAttr(keys, "sk")
	if pk == "" || len(key) == 0 {
		return "", "", nil, false
	}
	namespace, bucket, ok = keyspace.SplitPartitionKey(pk)
	if !ok {
		return "", "", nil, false
	}
	return namespace, bucket, key, true
}

// isTTLExpiry reports whether DynamoDB removed the item because its TTL expired.
func isTTLExpiry(record events.DynamoDBEventRecord) bool {
	return record.UserIdentity != nil &&
		record.UserIdentity.Type == "Service" &&
		record.UserIdentity.PrincipalID == ttlPrincipal
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getBinaryAttr extracts a binary attribute from a DynamoDB stream image.
func getBinaryAttr(image map[string]events.DynamoDBAttributeValue, key string) []byte {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeBinary {
		return v.Binary()
	}
	return nil
}
