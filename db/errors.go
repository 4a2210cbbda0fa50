package db

import "errors"

var (
	ErrNotFound      = errors.New("db: not found")
	ErrConflict      = errors.New("db: conflict")
	ErrAlreadyExists = errors.New("db: already exists")
)
