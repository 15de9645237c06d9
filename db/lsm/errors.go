package lsm

import "github.com/pkg/errors"

var (
	ErrReadOnly     = errors.New("database is opened read-only")
	ErrNotRunning   = errors.New("database is not running")
	ErrClosed       = errors.New("database is closed")
	ErrExists       = errors.New("database already exists")
	ErrNotFound     = errors.New("database does not exist")
	ErrSnapshotUsed = errors.New("snapshot was already released")
)
