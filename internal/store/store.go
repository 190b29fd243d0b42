// Package store persists generated meshes.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned for ids that are not stored.
var ErrNotFound = errors.New("model not found")

// Model is one saved mesh. Data holds the GLB bytes and is left empty
// in listings.
type Model struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Data      []byte    `json:"-"`
	Size      int       `json:"size"`
	Views     int       `json:"views"`
	Vertices  int       `json:"vertices"`
	Triangles int       `json:"triangles"`
	CreatedAt time.Time `json:"created_at"`
}

// Store saves and retrieves meshes.
type Store interface {
	// Save assigns an id and creation time when they are unset.
	Save(m *Model) error
	Get(id string) (*Model, error)
	// List returns models newest first, without data.
	List(limit, offset int) ([]*Model, error)
	Delete(id string) error
	Close() error
}
