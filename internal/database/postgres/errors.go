package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/DatFlow/internal/database"
)

// PostgreSQL SQLSTATE error codes (execution-relevant only)
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrConnectionFailure = "08006"
	pgErrInvalidAuth       = "28P01"
)

// mapError converts a pgx error into a DBError. The backend message is
// preserved verbatim for diagnostics.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return database.WrapError(database.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return database.WrapError(database.ErrKindNotFound, "record not found", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrConnectionFailure, pgErrInvalidAuth:
			return database.WrapError(database.ErrKindConnectionFailed,
				fmt.Sprintf("connection error: %s", pgErr.Message), err)
		default:
			// Backend rejection: keep the server's message verbatim.
			return database.WrapError(database.ErrKindBackend, pgErr.Message, err)
		}
	}

	return database.WrapError(database.ErrKindBackend, msg, err)
}
