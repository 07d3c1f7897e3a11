package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/swarmrun/swarmrun/internal/models"
)

// setupMockStore creates a PostgresStore backed by a sqlmock connection,
// expecting every statement prepareStatements issues at construction time.
func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for i := 0; i < 10; i++ {
		mock.ExpectPrepare(".*")
	}

	s := &PostgresStore{db: db, config: DefaultPostgresConfig()}
	if err := s.prepareStatements(); err != nil {
		t.Fatalf("prepareStatements() error = %v", err)
	}
	return s, mock
}

func testKey() models.ConversationKey {
	return models.ConversationKey{RepoURL: "github.com/acme/widgets", AgentRole: "reviewer", AgentID: "agent-1"}
}

func TestPostgresStore_AllocateNextTurnIdx(t *testing.T) {
	s, mock := setupMockStore(t)
	key := testKey()

	mock.ExpectQuery("INSERT INTO agent_state").
		WithArgs(key.RepoURL, key.AgentRole, key.AgentID).
		WillReturnRows(sqlmock.NewRows([]string{"last_turn_idx"}).AddRow(3))

	idx, err := s.AllocateNextTurnIdx(context.Background(), key)
	if err != nil {
		t.Fatalf("AllocateNextTurnIdx() error = %v", err)
	}
	if idx != 3 {
		t.Errorf("AllocateNextTurnIdx() = %d, want 3", idx)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_GetAgentState_NoRows(t *testing.T) {
	s, mock := setupMockStore(t)
	key := testKey()

	mock.ExpectQuery("SELECT last_turn_idx").
		WithArgs(key.RepoURL, key.AgentRole, key.AgentID).
		WillReturnError(sql.ErrNoRows)

	st, err := s.GetAgentState(context.Background(), key)
	if err != nil {
		t.Fatalf("GetAgentState() error = %v", err)
	}
	if st.LastTurnIdx != 0 {
		t.Errorf("expected a fresh AgentState for no rows, got LastTurnIdx=%d", st.LastTurnIdx)
	}
}

func TestPostgresStore_GetAgentState_UnpacksMetadata(t *testing.T) {
	s, mock := setupMockStore(t)
	key := testKey()

	mock.ExpectQuery("SELECT last_turn_idx").
		WithArgs(key.RepoURL, key.AgentRole, key.AgentID).
		WillReturnRows(sqlmock.NewRows([]string{"last_turn_idx", "last_message_id", "build_epoch", "metadata", "updated_at"}).
			AddRow(5, 12, 2, []byte(`{"label":"hot"}`), time.Now()))

	st, err := s.GetAgentState(context.Background(), key)
	if err != nil {
		t.Fatalf("GetAgentState() error = %v", err)
	}
	if st.Metadata["label"] != "hot" {
		t.Errorf("expected metadata label=hot, got %+v", st.Metadata)
	}
	if st.BuildEpoch != 2 {
		t.Errorf("expected build_epoch=2, got %d", st.BuildEpoch)
	}
}

func TestPostgresStore_SaveTurns_ReplacesInOneTransaction(t *testing.T) {
	s, mock := setupMockStore(t)
	key := testKey()

	turn := models.Turn{
		RepoURL:   key.RepoURL,
		AgentRole: key.AgentRole,
		AgentID:   key.AgentID,
		TurnIdx:   0,
		CreatedAt: time.Now(),
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "hello", Timestamp: time.Now()},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM turns").
		WithArgs(key.RepoURL, key.AgentRole, key.AgentID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO turns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.SaveTurns(context.Background(), key, []models.Turn{turn}); err != nil {
		t.Fatalf("SaveTurns() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_SaveTurns_RollsBackOnError(t *testing.T) {
	s, mock := setupMockStore(t)
	key := testKey()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM turns").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	if err := s.SaveTurns(context.Background(), key, nil); err == nil {
		t.Fatal("expected SaveTurns() to propagate the delete error")
	}
}

func TestPostgresStore_UpdateMetadata_MergesFields(t *testing.T) {
	s, mock := setupMockStore(t)
	key := testKey()

	mock.ExpectQuery("SELECT last_turn_idx").
		WithArgs(key.RepoURL, key.AgentRole, key.AgentID).
		WillReturnRows(sqlmock.NewRows([]string{"last_turn_idx", "last_message_id", "build_epoch", "metadata", "updated_at"}).
			AddRow(1, 1, 0, []byte(`{"existing":"value"}`), time.Now()))
	mock.ExpectExec("UPDATE agent_state SET metadata").
		WithArgs(key.RepoURL, key.AgentRole, key.AgentID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateMetadata(context.Background(), key, map[string]any{"new": "field"}); err != nil {
		t.Fatalf("UpdateMetadata() error = %v", err)
	}
}
