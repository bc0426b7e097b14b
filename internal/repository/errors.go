// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the services to distinguish
// between different failure scenarios without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be performed
// because dependent rows still reference the record (e.g. deleting a
// vehicle that has bookings).
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique
// index (license plate, chassis number, payment reference, email).
var ErrDuplicate = errors.New("duplicate key")

// ErrEmailExists is returned by UserRepo.Create for a taken email.
var ErrEmailExists = errors.New("email already exists")

const (
	mysqlDuplicateEntry = 1062
	mysqlRowReferenced  = 1451
)

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return ErrDuplicate
		case mysqlRowReferenced:
			return ErrConflict
		}
	}
	return err
}
