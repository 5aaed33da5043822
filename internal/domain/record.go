package domain

import "time"

// Record is the persisted envelope shared by every stored entity. The
// record store owns all of its fields: callers never set them on create,
// and every write re-stamps UpdatedAt and bumps Version.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

func (r *Record) Meta() *Record {
	return r
}
