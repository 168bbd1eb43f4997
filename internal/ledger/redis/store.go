// Package redis keeps ledger records as JSON strings with one set per indexed field value.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/gsPatrick/nutri-lp/internal/ledger"
)

type Store struct {
	client redis.UniversalClient
	prefix string
}

func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(id string) string {
	return fmt.Sprintf("%s:record:%s", s.prefix, id)
}

func (s *Store) indexKey(field ledger.Field, value string) string {
	return fmt.Sprintf("%s:idx:%s:%s", s.prefix, field, value)
}

func (s *Store) Get(ctx context.Context, id string) (*ledger.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// Put watches the record key, checks the stored version and then writes the
// record and moves its index entries in one MULTI block.
func (s *Store) Put(ctx context.Context, record *ledger.Record) error {
	key := s.recordKey(record.GatewayPaymentID)
	next := record.Clone()
	next.Version = record.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode payment record: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var previous *ledger.Record
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if previous, err = decode(raw); err != nil {
				return err
			}
		}

		var stored int64
		if previous != nil {
			stored = previous.Version
		}
		if stored != record.Version {
			return ledger.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			for _, field := range ledger.IndexedFields {
				value := next.FieldValue(field)
				if previous != nil {
					if old := previous.FieldValue(field); old != value && old != "" {
						pipe.SRem(ctx, s.indexKey(field, old), next.GatewayPaymentID)
					}
				}
				if value != "" {
					pipe.SAdd(ctx, s.indexKey(field, value), next.GatewayPaymentID)
				}
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ledger.ErrConflict
	}
	if err != nil {
		return err
	}

	record.Version = next.Version
	return nil
}

func (s *Store) ScanByField(ctx context.Context, field ledger.Field, value string) ([]*ledger.Record, error) {
	if !field.Valid() {
		return nil, ledger.ErrInvalidField
	}

	ids, err := s.client.SMembers(ctx, s.indexKey(field, value)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*ledger.Record, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		record, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		// an index entry can outlive a concurrent rewrite, so re-check the value
		if record.FieldValue(field) == value {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decode(raw []byte) (*ledger.Record, error) {
	var record ledger.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode payment record: %w", err)
	}
	return &record, nil
}
