package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/parcel/internal/database"
	"github.com/Additional-Code/parcel/internal/database/dbtest"
)

func countShipments(t *testing.T, db bun.IDB) int {
	t.Helper()
	var n int
	if err := db.NewRaw("SELECT COUNT(*) FROM shipments").Scan(context.Background(), &n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

const insertShipment = `INSERT INTO shipments (id, merchant_reference, carrier, barcode, recipient_name,
	recipient_address1, recipient_postal_code, recipient_city, recipient_country,
	parcel_weight_grams, parcel_length_cm, parcel_width_cm, parcel_height_cm, status)
	VALUES (?, 'ORDER-1', 'late_logistics', ?, 'Ada', '1 Main', '1011', 'Amsterdam', 'NL', 1000, 30, 20, 10, 'pending_creation')`

func TestRunInTxRollsBackOnError(t *testing.T) {
	conns := dbtest.Open(t)
	boom := errors.New("boom")

	err := conns.RunInTx(context.Background(), func(ctx context.Context) error {
		db := database.Conn(ctx, conns.Writer)
		if _, ok := db.(bun.Tx); !ok {
			t.Fatalf("expected transaction executor, got %T", db)
		}
		if _, err := db.NewRaw(insertShipment, "id-1", "BC1").Exec(ctx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := countShipments(t, conns.Writer); n != 0 {
		t.Fatalf("expected rollback, found %d rows", n)
	}
}

func TestRunInTxNestedJoinsOuter(t *testing.T) {
	conns := dbtest.Open(t)

	err := conns.RunInTx(context.Background(), func(ctx context.Context) error {
		return conns.RunInTx(ctx, func(ctx context.Context) error {
			_, err := database.Conn(ctx, conns.Writer).NewRaw(insertShipment, "id-2", "BC2").Exec(ctx)
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested tx: %v", err)
	}
	if n := countShipments(t, conns.Writer); n != 1 {
		t.Fatalf("expected committed row, found %d", n)
	}
	if _, ok := database.Conn(context.Background(), conns.Writer).(*bun.DB); !ok {
		t.Fatal("outside a transaction Conn must return the pool")
	}
}
