package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLoadMigrations_FindsEmbeddedInitialMigration(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("len(migrations) = %d, want 1", len(migrations))
	}
	if migrations[0].ID != "0001_initial" {
		t.Errorf("ID = %q, want 0001_initial", migrations[0].ID)
	}
	if migrations[0].UpSQL == "" || migrations[0].DownSQL == "" {
		t.Error("expected both up and down SQL to be non-empty")
	}
}

func TestMigrator_Up_SkipsAlreadyAppliedMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"id"}).AddRow("0001_initial")
	mock.ExpectQuery("SELECT id FROM schema_migrations").WillReturnRows(rows)

	m, err := NewMigrator(db)
	if err != nil {
		t.Fatalf("NewMigrator() error = %v", err)
	}

	applied, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %v, want none (already applied)", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMigrator_Up_AppliesPendingMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agent_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("0001_initial").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	m, err := NewMigrator(db)
	if err != nil {
		t.Fatalf("NewMigrator() error = %v", err)
	}

	applied, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if len(applied) != 1 || applied[0] != "0001_initial" {
		t.Errorf("applied = %v, want [0001_initial]", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
