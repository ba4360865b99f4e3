package packaging

import (
	"errors"

	"github.com/willibrandon/gonpm/registry"
)

var (
	// ErrInvalidPath indicates an archive entry that would escape the
	// package directory
	ErrInvalidPath = errors.New("invalid entry path")

	// ErrIntegrity indicates archive bytes that do not match the declared
	// integrity or shasum
	ErrIntegrity = registry.ErrIntegrity

	// ErrLockTimeout indicates another process held a package lock for too long
	ErrLockTimeout = errors.New("timeout acquiring package lock")
)
