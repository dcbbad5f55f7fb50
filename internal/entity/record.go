package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"example.com/userstate/internal/persistence"
)

// Record is one user's state in a domain. Its JSON form is flat: the fields
// of T sit next to user_id, completed_at and updated_at.
type Record[T any] struct {
	UserID      string
	Fields      T
	CompletedAt *time.Time
	UpdatedAt   *time.Time
}

type recordMeta struct {
	UserID      string     `json:"user_id"`
	CompletedAt *time.Time `json:"completed_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler. T must encode as a JSON object.
func (r Record[T]) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("record fields must encode as an object: %w", err)
	}

	meta, err := json.Marshal(recordMeta{UserID: r.UserID, CompletedAt: r.CompletedAt, UpdatedAt: r.UpdatedAt})
	if err != nil {
		return nil, err
	}
	var metaFields map[string]json.RawMessage
	if err := json.Unmarshal(meta, &metaFields); err != nil {
		return nil, err
	}
	for k, v := range metaFields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record[T]) UnmarshalJSON(data []byte) error {
	var meta recordMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}
	var fields T
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = Record[T]{
		UserID:      meta.UserID,
		Fields:      fields,
		CompletedAt: meta.CompletedAt,
		UpdatedAt:   meta.UpdatedAt,
	}
	return nil
}

func (r Record[T]) document() (persistence.Document, error) {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return persistence.Document{}, err
	}
	return persistence.Document{
		UserID:      r.UserID,
		Fields:      fields,
		CompletedAt: r.CompletedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func fromDocument[T any](doc persistence.Document) (Record[T], error) {
	var fields T
	if len(doc.Fields) > 0 {
		if err := json.Unmarshal(doc.Fields, &fields); err != nil {
			return Record[T]{}, err
		}
	}
	return Record[T]{
		UserID:      doc.UserID,
		Fields:      fields,
		CompletedAt: doc.CompletedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}
