package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"flowclaw/pkg/recovery"
	"flowclaw/pkg/storage"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestQueryAllMapsRows(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectQuery("SELECT \\* FROM messages").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text"}).
			AddRow("m1", []byte("hello")).
			AddRow("m2", "world"))

	rows, err := store.QueryAll(context.Background(), "SELECT * FROM messages")
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["id"] != "m1" || rows[0]["text"] != "hello" {
		t.Fatalf("row[0] = %v", rows[0])
	}
	if rows[1]["text"] != "world" {
		t.Fatalf("row[1] = %v", rows[1])
	}
}

func TestQueryOneEmptyResultIsNil(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectQuery("SELECT \\* FROM messages WHERE id = \\?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := store.QueryOne(context.Background(), "SELECT * FROM messages WHERE id = ?", "missing")
	if err != nil {
		t.Fatalf("QueryOne: %v", err)
	}
	if row != nil {
		t.Fatalf("row = %v, want nil", row)
	}
}

func TestInsertBuildsSortedColumns(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectExec("INSERT INTO messages \\(chat_id, id\\) VALUES \\(\\?, \\?\\)").
		WithArgs("42", "m1").
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := store.Insert(context.Background(), "messages", map[string]any{"id": "m1", "chat_id": "42"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 7 {
		t.Fatalf("insert id = %d, want 7", id)
	}
}

func TestInsertWithoutValuesFails(t *testing.T) {
	db, _ := newMockDB(t)
	store := NewStore(db)

	if _, err := store.Insert(context.Background(), "messages", nil); err == nil {
		t.Fatal("expected insert with no values to fail")
	}
}

func TestUpdateAppendsWhereArgs(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectExec("UPDATE members SET banned = \\? WHERE chat_id = \\?").
		WithArgs(true, "42").
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := store.Update(context.Background(), "members", map[string]any{"banned": true}, "chat_id = ?", "42")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if affected != 3 {
		t.Fatalf("affected = %d, want 3", affected)
	}
}

func TestDelete(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectExec("DELETE FROM messages WHERE id = \\?").
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := store.Delete(context.Background(), "messages", "id = ?", "m1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}
}

func TestFindByID(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectQuery("SELECT \\* FROM messages WHERE id = \\?").
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text"}).AddRow("m1", "hello"))

	row, err := store.FindByID(context.Background(), "messages", "m1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if row["text"] != "hello" {
		t.Fatalf("row = %v", row)
	}
}

func TestTransactionCommitsOnNil(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages \\(id\\) VALUES \\(\\?\\)").
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.Transaction(context.Background(), func(tx storage.Store) error {
		_, err := tx.Insert(context.Background(), "messages", storage.Row{"id": "m1"})
		return err
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	boom := errors.New("domain failure")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Transaction(context.Background(), func(tx storage.Store) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}

func TestQueryErrorsAreCategorized(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectQuery("SELECT \\* FROM messages").
		WillReturnError(context.DeadlineExceeded)

	_, err := store.QueryAll(context.Background(), "SELECT * FROM messages")
	if err == nil {
		t.Fatal("expected error")
	}
	if recovery.KindOf(err) != recovery.KindDatabase {
		t.Fatalf("kind = %q, want database", recovery.KindOf(err))
	}
	if recovery.CodeOf(err) != recovery.CodeQueryCancelled {
		t.Fatalf("code = %q, want %q", recovery.CodeOf(err), recovery.CodeQueryCancelled)
	}
}
