package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/koustreak/DatFlow/internal/database"
)

// SQL Server error numbers (execution-relevant only)
// Full list: https://learn.microsoft.com/en-us/sql/relational-databases/errors-events/
const (
	msErrLoginFailed   = 18456
	msErrCannotOpenDB  = 4060
	msErrNetworkFailed = 10054
)

// mapError converts a go-mssqldb error into a DBError. The backend message
// is preserved verbatim for diagnostics.
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

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case msErrLoginFailed, msErrCannotOpenDB, msErrNetworkFailed:
			return database.WrapError(database.ErrKindConnectionFailed,
				fmt.Sprintf("connection error: %s", msErr.Message), err)
		default:
			// Backend rejection: keep the server's message verbatim.
			return database.WrapError(database.ErrKindBackend, msErr.Message, err)
		}
	}

	return database.WrapError(database.ErrKindBackend, msg, err)
}
