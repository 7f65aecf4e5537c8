package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// KVStore keeps sessions in a NATS JetStream key-value bucket so any instance can resume a flow.
// Expiry is enforced by the bucket TTL.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore opens the bucket, creating it with the given TTL when missing
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KVStore, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "payment link creation sessions",
			TTL:         ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	return &KVStore{kv: kv}, nil
}

func sessionKey(userID int64) string {
	return "flow." + strconv.FormatInt(userID, 10)
}

func (k *KVStore) Get(ctx context.Context, userID int64) (*Session, error) {
	entry, err := k.kv.Get(ctx, sessionKey(userID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(entry.Value(), &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (k *KVStore) Put(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = k.kv.Put(ctx, sessionKey(s.UserID), data)
	return err
}

func (k *KVStore) Delete(ctx context.Context, userID int64) error {
	err := k.kv.Delete(ctx, sessionKey(userID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
