// AngelaMos | 2026
// store.go

package entitlement

import (
	"fmt"
	"sync/atomic"
)

// Source yields the matrix snapshot a single check runs against.
type Source interface {
	Matrix() *Matrix
}

// Store publishes one complete Matrix at a time. Readers take a snapshot
// with Matrix and keep it for the whole request; Swap replaces the pointer
// and never touches the previous value.
type Store struct {
	current atomic.Pointer[Matrix]
}

func NewStore(m *Matrix) (*Store, error) {
	if m == nil {
		return nil, fmt.Errorf("new store: nil matrix")
	}

	if err := m.ValidateErr(); err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}

	s := &Store{}
	s.current.Store(m)
	return s, nil
}

func (s *Store) Matrix() *Matrix {
	return s.current.Load()
}

// Swap installs m if it validates and returns the replaced matrix.
func (s *Store) Swap(m *Matrix) (*Matrix, error) {
	if m == nil {
		return nil, fmt.Errorf("swap matrix: nil matrix")
	}

	if err := m.ValidateErr(); err != nil {
		return nil, fmt.Errorf("swap matrix: %w", err)
	}

	return s.current.Swap(m), nil
}

// Static wraps a fixed matrix, for tests and single-purpose tools.
type Static struct {
	M *Matrix
}

func (s Static) Matrix() *Matrix {
	return s.M
}
