package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entity is implemented by every record kept in the record store
type Entity interface {
	Meta() *Record
}

// Record holds the store-assigned key and bookkeeping timestamps shared by all entities
type Record struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta exposes the record bookkeeping of an embedding entity
func (r *Record) Meta() *Record {
	return r
}

// Stamp sets the creation time once and the update time always
func (r *Record) Stamp(now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

// BeforeCreate hook
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = NewKey()
	}
	return nil
}

// NewKey returns a fresh opaque entity key
func NewKey() string {
	return uuid.NewString()
}
