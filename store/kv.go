// Package store provides durable trigger persistence behind the
// trigger.Store interface: a JetStream key-value implementation for
// production and an in-memory implementation for tests and store-less
// operation.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/natsclient"
	"github.com/c360/triggerkit/trigger"
)

// DefaultBucket is the KV bucket holding trigger definitions
const DefaultBucket = "triggers"

// KVStore persists triggers in a JetStream key-value bucket, one entry per
// trigger keyed by trigger id.
type KVStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewKVStore creates (or reuses) the trigger bucket on the given client
func NewKVStore(ctx context.Context, client *natsclient.Client, bucketName string, logger *slog.Logger) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "KVStore", "NewKVStore", "nil NATS client")
	}
	if bucketName == "" {
		bucketName = DefaultBucket
	}
	if logger == nil {
		logger = slog.Default()
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "memory trigger definitions",
	})
	if err != nil {
		return nil, errors.Wrap(err, "KVStore", "NewKVStore", "create bucket "+bucketName)
	}

	return &KVStore{
		bucket: bucket,
		logger: logger.With("component", "trigger-store"),
	}, nil
}

// Load returns all stored triggers. Entries that fail to decode are
// skipped and logged so one corrupt record cannot block startup.
func (s *KVStore) Load(ctx context.Context) ([]trigger.MemoryTrigger, error) {
	lister, err := s.bucket.ListKeys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "Load", "list keys")
	}
	defer func() { _ = lister.Stop() }()

	var triggers []trigger.MemoryTrigger
	for key := range lister.Keys() {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			s.logger.Warn("failed to read trigger entry", "key", key, "error", err)
			continue
		}

		var t trigger.MemoryTrigger
		if err := json.Unmarshal(entry.Value(), &t); err != nil {
			s.logger.Warn("skipping undecodable trigger entry", "key", key, "error", err)
			continue
		}
		triggers = append(triggers, t)
	}

	return triggers, nil
}

// Save writes one trigger, overwriting any previous revision
func (s *KVStore) Save(ctx context.Context, t trigger.MemoryTrigger) error {
	data, err := json.Marshal(t)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "Save", "encode trigger "+t.ID)
	}

	if _, err := s.bucket.Put(ctx, t.ID, data); err != nil {
		return errors.WrapTransient(err, "KVStore", "Save", "put trigger "+t.ID)
	}
	return nil
}

// Delete removes a trigger entry. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, id string) error {
	if err := s.bucket.Delete(ctx, id); err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return errors.WrapTransient(err, "KVStore", "Delete", "delete trigger "+id)
	}
	return nil
}
