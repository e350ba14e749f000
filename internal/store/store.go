// Package store provides the durable key/value backends used to persist
// cluster-scoped state such as the install ledger.
//
// Every backend implements create-or-replace semantics: Put with
// expectAbsent set only succeeds when nothing is stored under the key and
// otherwise reports ErrAlreadyExists; Put without it replaces unconditionally.
// No backend offers compare-and-swap, so concurrent read-modify-write cycles
// are last-writer-wins.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned by Put when expectAbsent is set and the key exists
var ErrAlreadyExists = errors.New("object already exists")

// Key addresses one value: a field inside a named object in a namespace
type Key struct {
	Namespace string
	Name      string
	Field     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s#%s", k.Namespace, k.Name, k.Field)
}

// KeyValueStore is the minimal durable store contract
type KeyValueStore interface {
	// Get returns the stored bytes and true, or false when nothing is stored
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	// Put stores value under key. With expectAbsent it fails with ErrAlreadyExists
	// when a value is already present.
	Put(ctx context.Context, key Key, value []byte, expectAbsent bool) error
}
