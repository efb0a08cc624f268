package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/DatFlow/internal/database"
)

// MySQL error numbers (execution-relevant only)
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
	errConnRefused     = 2003
)

// mapError converts a MySQL driver error into a DBError. The backend
// message is preserved verbatim for diagnostics.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return database.WrapError(database.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return database.WrapError(database.ErrKindNotFound, "record not found", err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errAccessDenied, errUnknownDatabase, errConnRefused:
			return database.WrapError(database.ErrKindConnectionFailed,
				fmt.Sprintf("connection error: %s", mysqlErr.Message), err)
		default:
			// Backend rejection: keep the server's message verbatim.
			return database.WrapError(database.ErrKindBackend, mysqlErr.Message, err)
		}
	}

	return database.WrapError(database.ErrKindBackend, msg, err)
}
