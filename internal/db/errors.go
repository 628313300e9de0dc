package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// SQL Server error numbers the transfer logic must distinguish.
const (
	sqlErrDuplicateIndex = 2601 // cannot insert duplicate key row (unique index)
	sqlErrDuplicateKey   = 2627 // violation of unique constraint
	sqlErrObjectNotFound = 208  // invalid object name
	sqlErrLoginFailed    = 18456
	sqlErrPermission     = 229
	sqlErrQueryTimeout   = -2 // driver-reported query timeout
)

// ErrTableNotFound marks a missing destination table, which PREPARE_DEST
// tolerates as an empty destination.
var ErrTableNotFound = errors.New("table not found")

// Classify maps a driver error to the transfer error taxonomy.
func Classify(err error) entity.Kind {
	if err == nil {
		return ""
	}

	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case sqlErrDuplicateIndex, sqlErrDuplicateKey:
			return entity.KindDuplicate
		case sqlErrQueryTimeout:
			return entity.KindConnectionLost
		case sqlErrLoginFailed, sqlErrPermission, sqlErrObjectNotFound:
			return entity.KindUnknown
		}
		return entity.KindUnknown
	}

	if errors.Is(err, context.Canceled) {
		return entity.KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.KindConnectionLost
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return entity.KindConnectionLost
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return entity.KindConnectionLost
	}

	// The driver reports dead sessions that never finished login as plain
	// text rather than a typed error.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"invalid connection",
		"connection is closed",
		"connection reset",
		"broken pipe",
		"not loggedin",
		"bad connection",
		"i/o timeout",
	} {
		if strings.Contains(msg, marker) {
			return entity.KindConnectionLost
		}
	}

	return entity.KindUnknown
}

// IsDuplicateErr reports whether err is a unique-constraint violation.
func IsDuplicateErr(err error) bool {
	return Classify(err) == entity.KindDuplicate
}

// IsConnectionErr reports whether err is connection-classified.
func IsConnectionErr(err error) bool {
	return Classify(err) == entity.KindConnectionLost
}

// IsTableNotFound reports whether err means the referenced table is missing.
func IsTableNotFound(err error) bool {
	if errors.Is(err, ErrTableNotFound) {
		return true
	}
	var sqlErr mssql.Error
	return errors.As(err, &sqlErr) && sqlErr.Number == sqlErrObjectNotFound
}

// WrapSQL converts a raw driver error into a classified TransferError.
func WrapSQL(message string, err error) error {
	if err == nil {
		return nil
	}
	return entity.NewTransferError(Classify(err), message, err)
}
