package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Backend persists one opaque document per collection name. Mutate must
// run fn and store its result as a single atomic read-modify-write; fn may
// be invoked more than once when the backend retries an optimistic write.
// A nil result from fn means "leave the collection untouched".
type Backend interface {
	Load(ctx context.Context, collection string) ([]byte, error)
	Mutate(ctx context.Context, collection string, fn func(current []byte) ([]byte, error)) error
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// SchemaVersion is written into every collection document. Documents that
// are a bare JSON array predate versioning and read as version 0.
const SchemaVersion = 1

type document[T any] struct {
	SchemaVersion int `json:"schema_version"`
	Records       []T `json:"records"`
}

func decodeDocument[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var recs []T
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("decode legacy collection: %w", err)
		}
		return recs, nil
	}
	var doc document[T]
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if doc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, doc.SchemaVersion)
	}
	return doc.Records, nil
}

func encodeDocument[T any](recs []T) ([]byte, error) {
	if recs == nil {
		recs = []T{}
	}
	return json.Marshal(document[T]{SchemaVersion: SchemaVersion, Records: recs})
}
