// Package orbiterr defines the sentinel error taxonomy shared across the
// database manager, oplog, access controller, and replication coordinator.
package orbiterr

import "errors"

var (
	// ErrInvalidType is returned when a requested database type is not one
	// of the five valid flavors.
	ErrInvalidType = errors.New("orbiterr: invalid database type")

	// ErrInvalidAddress is returned when a string fails to parse as an
	// address where one is required.
	ErrInvalidAddress = errors.New("orbiterr: invalid address")

	// ErrNameIsAddress is returned when Create is given an address instead
	// of a bare name.
	ErrNameIsAddress = errors.New("orbiterr: name is an address")

	// ErrAlreadyExists is returned when a manifest slot already exists in
	// the cache bucket and overwrite was not requested.
	ErrAlreadyExists = errors.New("orbiterr: database already exists")

	// ErrNotFound is returned from a localOnly open with no cache slot.
	ErrNotFound = errors.New("orbiterr: database not found locally")

	// ErrTypeMismatch is returned when the manifest's type disagrees with
	// the type requested at open.
	ErrTypeMismatch = errors.New("orbiterr: type mismatch")

	// ErrAccessDenied is returned when an entry's identity is not permitted
	// by the access controller, or its signature does not verify.
	ErrAccessDenied = errors.New("orbiterr: access denied")

	// ErrIntegrity is returned when an entry's hash or signature fails to
	// verify.
	ErrIntegrity = errors.New("orbiterr: integrity error")

	// ErrTransport is returned on object store or pub/sub bus failures.
	ErrTransport = errors.New("orbiterr: transport error")
)
