package sheets

import "context"

// Ports for outbound adapters.
type (
	// TableReader reads a whole logical table. A table that does not exist in
	// the medium yet is returned empty, shaped with its schema columns.
	TableReader interface {
		ReadTable(ctx context.Context, name string) (Table, error)
	}

	// TableWriter replaces a whole logical table. Either every row is
	// replaced or the call fails; a partial table is never observable.
	TableWriter interface {
		WriteTable(ctx context.Context, name string, rows []Row) error
	}

	// RowAppender adds a single row, for media where that is cheaper than a
	// full overwrite.
	RowAppender interface {
		AppendRow(ctx context.Context, name string, row Row) error
	}

	// Medium is the minimum a backing store must provide.
	Medium interface {
		TableReader
		TableWriter
	}
)
