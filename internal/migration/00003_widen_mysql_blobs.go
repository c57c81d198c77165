package migration

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(widenBlobsUp, widenBlobsDown)
}

// MySQL caps TEXT at 64KB, below a base64 label or signature image. The
// other dialects store TEXT unbounded.
func widenBlobStatements(dialect string, up bool) []string {
	if dialect != "mysql" {
		return nil
	}
	column := "TEXT"
	if up {
		column = "MEDIUMTEXT"
	}
	return []string{
		"ALTER TABLE shipments MODIFY label_blob " + column,
		"ALTER TABLE shipments MODIFY signature " + column,
		"ALTER TABLE shipment_events MODIFY raw_payload " + column + " NOT NULL",
	}
}

func widenBlobsUp(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, widenBlobStatements(activeDialect, true))
}

func widenBlobsDown(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, widenBlobStatements(activeDialect, false))
}

func execAll(ctx context.Context, tx *sql.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
