package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tradeledger/src/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func TestOrderRepositoryFindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&OrderRepository{}).WithDB(db)

	t.Run("not found maps to nil, nil", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE "orders"."id" = $1 ORDER BY "orders"."id" LIMIT $2`)).
			WithArgs(99, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		order, err := repo.FindByID(context.Background(), 99)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order != nil {
			t.Fatalf("expected nil order, got %+v", order)
		}
	})

	t.Run("found", func(t *testing.T) {
		now := time.Now().UTC()
		rows := sqlmock.NewRows([]string{"id", "client_order_id", "strategy_name", "ticker", "side", "status", "quantity", "filled_quantity", "submitted_at"}).
			AddRow(7, "paper-s1-AAPL-abc123def456", "s1", "AAPL", "buy", "pending", "10", "0", now)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE "orders"."id" = $1 ORDER BY "orders"."id" LIMIT $2`)).
			WithArgs(7, 1).
			WillReturnRows(rows)

		order, err := repo.FindByID(context.Background(), 7)
		if err != nil || order == nil {
			t.Fatalf("expected order, got %+v err=%v", order, err)
		}
		if order.ClientOrderID != "paper-s1-AAPL-abc123def456" || order.Status != "pending" {
			t.Fatalf("unexpected order: %+v", order)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOrderRepositoryApplyVenueUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&OrderRepository{}).WithDB(db)

	upd := VenueUpdate{
		Status:         model.OrderStatusFilled,
		FilledQuantity: decimal.RequireFromString("10"),
	}

	t.Run("compare-and-set succeeds", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.ApplyVenueUpdate(context.Background(), 7, model.OrderStatusPending, upd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("stale read yields ErrStaleOrderUpdate", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.ApplyVenueUpdate(context.Background(), 7, model.OrderStatusPending, upd)
		if !errors.Is(err, ErrStaleOrderUpdate) {
			t.Fatalf("expected ErrStaleOrderUpdate, got %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOrderRepositoryListOpen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&OrderRepository{}).WithDB(db)

	rows := sqlmock.NewRows([]string{"id", "status"}).
		AddRow(1, "submitted").
		AddRow(2, "partially_filled")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE status IN ($1,$2,$3) ORDER BY submitted_at ASC`)).
		WithArgs("submitted", "pending", "partially_filled").
		WillReturnRows(rows)

	orders, err := repo.ListOpen(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 open orders, got %d", len(orders))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
