package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"

	"github.com/koustreak/DatFlow/internal/database"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want database.ErrKind
	}{
		{"nil passes through", nil, database.ErrKindUnknown},
		{"deadline", context.DeadlineExceeded, database.ErrKindTimeout},
		{"cancelled", context.Canceled, database.ErrKindTimeout},
		{"no rows", sql.ErrNoRows, database.ErrKindNotFound},
		{"login failed", mssql.Error{Number: 18456, Message: "Login failed for user"}, database.ErrKindConnectionFailed},
		{"cannot open database", mssql.Error{Number: 4060, Message: "Cannot open database"}, database.ErrKindConnectionFailed},
		{"server rejection", mssql.Error{Number: 207, Message: "Invalid column name 'foo'"}, database.ErrKindBackend},
		{"foreign error", errors.New("boom"), database.ErrKindBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.in, "query failed")
			if tt.in == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, database.KindOf(err))
		})
	}
}

func TestMapError_PreservesServerMessage(t *testing.T) {
	err := mapError(mssql.Error{Number: 207, Message: "Invalid column name 'foo'"}, "query failed")
	assert.Contains(t, err.Error(), "Invalid column name 'foo'")
}
