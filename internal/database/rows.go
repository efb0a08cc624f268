package database

import (
	"github.com/koustreak/DatFlow/internal/logger"
)

// ScanRows reads all rows from the result set and returns them as Records.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows; callers do not need to call Close().
func ScanRows(rows Rows) ([]Record, []string, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, WrapError(ErrKindBackend, "failed to read column names", err)
	}

	result := make([]Record, 0)

	for rows.Next() {
		rec, err := scanRecord(rows, columns)
		if err != nil {
			return nil, nil, err
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, WrapError(ErrKindBackend, "error during row iteration", err)
	}

	return result, columns, nil
}

// ScanRowsChunked materializes the full result set in fixed-size batches,
// logging progress per batch and a one-shot advisory once the accumulated
// row count crosses warnRows. The advisory never aborts the fetch.
//
// ScanRowsChunked always closes the Rows.
func ScanRowsChunked(rows Rows, batchSize, warnRows int, log *logger.Logger) (*Result, error) {
	defer rows.Close()

	if batchSize <= 0 {
		batchSize = 1000
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, WrapError(ErrKindBackend, "failed to read column names", err)
	}

	res := &Result{
		Columns: columns,
		Rows:    make([]Record, 0),
	}

	warned := false
	for rows.Next() {
		rec, err := scanRecord(rows, columns)
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, rec)

		n := len(res.Rows)
		if n%batchSize == 0 && log != nil {
			log.Debugf("materialized %d rows so far", n)
		}
		if !warned && warnRows > 0 && n > warnRows && log != nil {
			log.Warnf("large result set (%d rows and counting); consider adding filters", n)
			warned = true
		}
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(ErrKindBackend, "error during row iteration", err)
	}

	res.RowCount = len(res.Rows)
	res.Complete = true
	return res, nil
}

func scanRecord(rows Rows, columns []string) (Record, error) {
	// Allocate scan targets as *any so the driver can write any type.
	dest := make([]any, len(columns))
	destPtrs := make([]any, len(columns))
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	if err := rows.Scan(destPtrs...); err != nil {
		return nil, WrapError(ErrKindBackend, "failed to scan row", err)
	}

	rec := make(Record, len(columns))
	for i, col := range columns {
		rec[col] = dest[i]
	}
	return rec, nil
}
