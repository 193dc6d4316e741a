// Package repository holds the MySQL stores. Sentinel errors let the
// service layer tell "no such row" and "lost a conditional update" apart
// from driver failures.
package repository

import "errors"

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row because
// the row moved on (status or lease changed concurrently).
var ErrConflict = errors.New("conflict")
