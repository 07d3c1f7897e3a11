package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/swarmrun/swarmrun/internal/models"
	"github.com/swarmrun/swarmrun/internal/retry"
)

// PostgresConfig holds the connection parameters for the Postgres-backed
// Conversation Store.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration

	// RetryConfig governs how SaveTurns and the allocators respond to a
	// busy/contended connection.
	RetryConfig retry.Config
}

// DefaultPostgresConfig returns sensible defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "swarmrun",
		Database:        "swarmrun",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		RetryConfig:     retry.DefaultConfig(),
	}
}

// PostgresStore implements Store against a Postgres (or Postgres-wire
// compatible) database using database/sql and lib/pq.
type PostgresStore struct {
	db     *sql.DB
	config *PostgresConfig

	stmtAllocateTurnIdx   *sql.Stmt
	stmtAllocateMessageID *sql.Stmt
	stmtGetState          *sql.Stmt
	stmtLoadTurns         *sql.Stmt
	stmtLoadMessages      *sql.Stmt
	stmtInsertTurn        *sql.Stmt
	stmtInsertToolMeta    *sql.Stmt
	stmtInsertMessage     *sql.Stmt
	stmtDeleteConv        *sql.Stmt
	stmtUpdateMetadata    *sql.Stmt
}

// NewPostgresStore opens a connection, verifies it, and prepares every
// statement the store needs.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password,
		config.Database, config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)
	return newPostgresStoreWithDSN(dsn, config)
}

// NewPostgresStoreFromDSN opens a store from a raw connection string.
func NewPostgresStoreFromDSN(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}
	return newPostgresStoreWithDSN(dsn, config)
}

func newPostgresStoreWithDSN(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db, config: config}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) prepareStatements() error {
	var err error

	s.stmtAllocateTurnIdx, err = s.db.Prepare(`
		INSERT INTO agent_state (repo_url, agent_role, agent_id, last_turn_idx, last_message_id, build_epoch, updated_at)
		VALUES ($1, $2, $3, 0, -1, 0, now())
		ON CONFLICT (repo_url, agent_role, agent_id)
		DO UPDATE SET last_turn_idx = agent_state.last_turn_idx + 1, updated_at = now()
		RETURNING last_turn_idx
	`)
	if err != nil {
		return fmt.Errorf("prepare allocate turn idx: %w", err)
	}

	s.stmtAllocateMessageID, err = s.db.Prepare(`
		INSERT INTO agent_state (repo_url, agent_role, agent_id, last_turn_idx, last_message_id, build_epoch, updated_at)
		VALUES ($1, $2, $3, -1, 0, 0, now())
		ON CONFLICT (repo_url, agent_role, agent_id)
		DO UPDATE SET last_message_id = agent_state.last_message_id + 1, updated_at = now()
		RETURNING last_message_id
	`)
	if err != nil {
		return fmt.Errorf("prepare allocate message id: %w", err)
	}

	s.stmtGetState, err = s.db.Prepare(`
		SELECT last_turn_idx, last_message_id, build_epoch, metadata, updated_at
		FROM agent_state WHERE repo_url = $1 AND agent_role = $2 AND agent_id = $3
	`)
	if err != nil {
		return fmt.Errorf("prepare get state: %w", err)
	}

	s.stmtLoadTurns, err = s.db.Prepare(`
		SELECT t.turn_idx, t.total_char_count, t.finalized, t.turns_to_purge, t.invocation_reason, t.created_at,
		       m.tool_name, m.execution_time, m.status, m.rejection, m.pending_deletion, m.deleted,
		       m.preservation_policy, m.args_hash, m.preservation_policy_type, m.normalized_filename,
		       m.input_args, m.normalized_args, m.build_epoch_at_record
		FROM turns t
		LEFT JOIN tool_meta m ON m.repo_url = t.repo_url AND m.agent_role = t.agent_role
			AND m.agent_id = t.agent_id AND m.turn_idx = t.turn_idx
		WHERE t.repo_url = $1 AND t.agent_role = $2 AND t.agent_id = $3
		ORDER BY t.turn_idx ASC
	`)
	if err != nil {
		return fmt.Errorf("prepare load turns: %w", err)
	}

	s.stmtLoadMessages, err = s.db.Prepare(`
		SELECT turn_idx, message_idx, role, content, timestamp, original_message_id, char_count, raw_json
		FROM messages
		WHERE repo_url = $1 AND agent_role = $2 AND agent_id = $3
		ORDER BY turn_idx ASC, message_idx ASC
	`)
	if err != nil {
		return fmt.Errorf("prepare load messages: %w", err)
	}

	s.stmtInsertTurn, err = s.db.Prepare(`
		INSERT INTO turns (repo_url, agent_role, agent_id, turn_idx, total_char_count, finalized, turns_to_purge, invocation_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert turn: %w", err)
	}

	s.stmtInsertToolMeta, err = s.db.Prepare(`
		INSERT INTO tool_meta (repo_url, agent_role, agent_id, turn_idx, tool_name, execution_time, status,
			rejection, pending_deletion, deleted, preservation_policy, args_hash, preservation_policy_type,
			normalized_filename, input_args, normalized_args, build_epoch_at_record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert tool meta: %w", err)
	}

	s.stmtInsertMessage, err = s.db.Prepare(`
		INSERT INTO messages (repo_url, agent_role, agent_id, turn_idx, message_idx, role, content,
			timestamp, original_message_id, char_count, raw_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert message: %w", err)
	}

	s.stmtDeleteConv, err = s.db.Prepare(`
		DELETE FROM turns WHERE repo_url = $1 AND agent_role = $2 AND agent_id = $3
	`)
	if err != nil {
		return fmt.Errorf("prepare delete conversation: %w", err)
	}

	s.stmtUpdateMetadata, err = s.db.Prepare(`
		UPDATE agent_state SET metadata = $4, updated_at = now()
		WHERE repo_url = $1 AND agent_role = $2 AND agent_id = $3
	`)
	if err != nil {
		return fmt.Errorf("prepare update metadata: %w", err)
	}

	return nil
}

// Close releases every prepared statement and the underlying connection
// pool.
func (s *PostgresStore) Close() error {
	stmts := []*sql.Stmt{
		s.stmtAllocateTurnIdx, s.stmtAllocateMessageID, s.stmtGetState, s.stmtLoadTurns,
		s.stmtLoadMessages, s.stmtInsertTurn, s.stmtInsertToolMeta, s.stmtInsertMessage,
		s.stmtDeleteConv, s.stmtUpdateMetadata,
	}
	for _, st := range stmts {
		if st != nil {
			_ = st.Close()
		}
	}
	return s.db.Close()
}

// withRetry runs op, retrying busy/contended failures per s.config.RetryConfig.
func (s *PostgresStore) withRetry(ctx context.Context, op func() error) error {
	result := retry.Do(ctx, s.config.RetryConfig, func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			return err
		}
		return retry.Permanent(err)
	})
	if result.Err != nil {
		return NewStorageError("postgres", "", result.Err)
	}
	return nil
}

func isBusyError(err error) bool {
	// lib/pq surfaces serialization/deadlock failures as *pq.Error with a
	// SQLSTATE class of 40 (transaction rollback); treat those as
	// retryable busy errors, everything else as permanent.
	var pqErr interface{ Code() interface{ String() string } }
	if errors.As(err, &pqErr) && pqErr != nil {
		code := pqErr.Code().String()
		return len(code) >= 2 && code[:2] == "40"
	}
	return false
}

// AllocateNextTurnIdx implements Store.
func (s *PostgresStore) AllocateNextTurnIdx(ctx context.Context, key models.ConversationKey) (int, error) {
	var idx int
	err := s.withRetry(ctx, func() error {
		return s.stmtAllocateTurnIdx.QueryRowContext(ctx, key.RepoURL, key.AgentRole, key.AgentID).Scan(&idx)
	})
	return idx, err
}

// AllocateNextMessageID implements Store.
func (s *PostgresStore) AllocateNextMessageID(ctx context.Context, key models.ConversationKey) (int, error) {
	var id int
	err := s.withRetry(ctx, func() error {
		return s.stmtAllocateMessageID.QueryRowContext(ctx, key.RepoURL, key.AgentRole, key.AgentID).Scan(&id)
	})
	return id, err
}

// GetAgentState implements Store.
func (s *PostgresStore) GetAgentState(ctx context.Context, key models.ConversationKey) (models.AgentState, error) {
	st := models.NewAgentState(key)
	var metadataJSON []byte
	err := s.stmtGetState.QueryRowContext(ctx, key.RepoURL, key.AgentRole, key.AgentID).
		Scan(&st.LastTurnIdx, &st.LastMessageID, &st.BuildEpoch, &metadataJSON, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, NewStorageError("get_agent_state", key.String(), err)
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &st.Metadata)
	}
	return st, nil
}

// LoadTurns implements Store.
func (s *PostgresStore) LoadTurns(ctx context.Context, key models.ConversationKey) ([]models.Turn, error) {
	rows, err := s.stmtLoadTurns.QueryContext(ctx, key.RepoURL, key.AgentRole, key.AgentID)
	if err != nil {
		return nil, NewStorageError("load_turns", key.String(), err)
	}
	defer rows.Close()

	turnsByIdx := make(map[int]*models.Turn)
	var order []int
	for rows.Next() {
		var (
			t                  models.Turn
			turnsToPurge       []byte
			toolName           sql.NullString
			execTime           sql.NullFloat64
			status             sql.NullString
			rejection          sql.NullString
			pendingDeletion    sql.NullBool
			deleted            sql.NullBool
			preservationPolicy sql.NullString
			argsHash           sql.NullString
			toolType           sql.NullString
			normalizedFilename sql.NullString
			inputArgs          []byte
			normalizedArgs     []byte
			buildEpochAtRecord sql.NullInt64
		)
		if err := rows.Scan(&t.TurnIdx, &t.TotalCharCount, &t.Finalized, &turnsToPurge, &t.InvocationReason, &t.CreatedAt,
			&toolName, &execTime, &status, &rejection, &pendingDeletion, &deleted,
			&preservationPolicy, &argsHash, &toolType, &normalizedFilename,
			&inputArgs, &normalizedArgs, &buildEpochAtRecord); err != nil {
			return nil, NewStorageError("load_turns_scan", key.String(), err)
		}
		if len(turnsToPurge) > 0 {
			_ = json.Unmarshal(turnsToPurge, &t.TurnsToPurge)
		}
		if toolName.Valid {
			t.ToolInvocation = &models.ToolInvocation{
				ToolName:           toolName.String,
				ToolType:           toolType.String,
				ExecutionTime:      execTime.Float64,
				Status:             models.ToolStatus(status.String),
				Rejection:          rejection.String,
				PendingDeletion:    pendingDeletion.Bool,
				Deleted:            deleted.Bool,
				PreservationPolicy: models.PreservationPolicy(preservationPolicy.String),
				ArgsHash:           argsHash.String,
				NormalizedFilename: normalizedFilename.String,
				InputArgs:          inputArgs,
				NormalizedArgs:     normalizedArgs,
				BuildEpochAtRecord: int(buildEpochAtRecord.Int64),
			}
		}
		turnsByIdx[t.TurnIdx] = &t
		order = append(order, t.TurnIdx)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("load_turns_rows", key.String(), err)
	}

	msgRows, err := s.stmtLoadMessages.QueryContext(ctx, key.RepoURL, key.AgentRole, key.AgentID)
	if err != nil {
		return nil, NewStorageError("load_messages", key.String(), err)
	}
	defer msgRows.Close()
	for msgRows.Next() {
		var (
			turnIdx  int
			m        models.Message
			rawExtra []byte
		)
		if err := msgRows.Scan(&turnIdx, &m.MessageIdx, &m.Role, &m.Content, &m.Timestamp, &m.OriginalMessageID, &m.CharCount, &rawExtra); err != nil {
			return nil, NewStorageError("load_messages_scan", key.String(), err)
		}
		m.RepoURL, m.AgentRole, m.AgentID, m.TurnIdx = key.RepoURL, key.AgentRole, key.AgentID, turnIdx
		m.RawExtra = rawExtra
		if t, ok := turnsByIdx[turnIdx]; ok {
			t.Messages = append(t.Messages, m)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, NewStorageError("load_messages_rows", key.String(), err)
	}

	out := make([]models.Turn, 0, len(order))
	for _, idx := range order {
		t := turnsByIdx[idx]
		t.RepoURL, t.AgentRole, t.AgentID = key.RepoURL, key.AgentRole, key.AgentID
		out = append(out, *t)
	}
	return out, nil
}

// QueryTurns implements Store.
func (s *PostgresStore) QueryTurns(ctx context.Context, key models.ConversationKey, filters QueryFilters, srt Sort, limit, offset int) ([]models.Turn, error) {
	turns, err := s.LoadTurns(ctx, key)
	if err != nil {
		return nil, err
	}
	filtered := make([]models.Turn, 0, len(turns))
	for _, t := range turns {
		if matchesFilters(t, filters) {
			filtered = append(filtered, t)
		}
	}
	applySort(filtered, srt)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(filtered) {
		return nil, nil
	}
	end := len(filtered)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return filtered[offset:end], nil
}

// SaveTurns implements Store: it replaces the conversation's rows inside a
// single transaction, preserving whatever turn_idx/original_message_id the
// caller supplied.
func (s *PostgresStore) SaveTurns(ctx context.Context, key models.ConversationKey, turns []models.Turn) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		if _, err := tx.StmtContext(ctx, s.stmtDeleteConv).ExecContext(ctx, key.RepoURL, key.AgentRole, key.AgentID); err != nil {
			return fmt.Errorf("clear conversation: %w", err)
		}

		for _, t := range turns {
			purge, _ := json.Marshal(t.TurnsToPurge)
			if _, err := tx.StmtContext(ctx, s.stmtInsertTurn).ExecContext(ctx,
				key.RepoURL, key.AgentRole, key.AgentID, t.TurnIdx, t.TotalCharCount, t.Finalized, purge, t.InvocationReason, t.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert turn %d: %w", t.TurnIdx, err)
			}

			if inv := t.ToolInvocation; inv != nil {
				if _, err := tx.StmtContext(ctx, s.stmtInsertToolMeta).ExecContext(ctx,
					key.RepoURL, key.AgentRole, key.AgentID, t.TurnIdx, inv.ToolName, inv.ExecutionTime, inv.Status,
					inv.Rejection, inv.PendingDeletion, inv.Deleted, inv.PreservationPolicy, inv.ArgsHash, inv.ToolType,
					inv.NormalizedFilename, []byte(inv.InputArgs), []byte(inv.NormalizedArgs), inv.BuildEpochAtRecord,
				); err != nil {
					return fmt.Errorf("insert tool meta %d: %w", t.TurnIdx, err)
				}
			}

			for _, m := range t.Messages {
				if _, err := tx.StmtContext(ctx, s.stmtInsertMessage).ExecContext(ctx,
					key.RepoURL, key.AgentRole, key.AgentID, t.TurnIdx, m.MessageIdx, m.Role, m.Content,
					m.Timestamp, m.OriginalMessageID, m.CharCount, []byte(m.RawExtra),
				); err != nil {
					return fmt.Errorf("insert message %d/%d: %w", t.TurnIdx, m.MessageIdx, err)
				}
			}
		}

		return tx.Commit()
	})
}

// DeleteConversation implements Store: cascades turns/tool_meta/messages via
// foreign keys and resets the counter row.
func (s *PostgresStore) DeleteConversation(ctx context.Context, key models.ConversationKey) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck
		if _, err := tx.StmtContext(ctx, s.stmtDeleteConv).ExecContext(ctx, key.RepoURL, key.AgentRole, key.AgentID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM agent_state WHERE repo_url = $1 AND agent_role = $2 AND agent_id = $3`,
			key.RepoURL, key.AgentRole, key.AgentID,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetMetadata implements Store.
func (s *PostgresStore) GetMetadata(ctx context.Context, key models.ConversationKey) (map[string]any, error) {
	st, err := s.GetAgentState(ctx, key)
	if err != nil {
		return nil, err
	}
	if st.Metadata == nil {
		return map[string]any{}, nil
	}
	return st.Metadata, nil
}

// UpdateMetadata implements Store.
func (s *PostgresStore) UpdateMetadata(ctx context.Context, key models.ConversationKey, fields map[string]any) error {
	return s.withRetry(ctx, func() error {
		st, err := s.GetAgentState(ctx, key)
		if err != nil {
			return err
		}
		if st.Metadata == nil {
			st.Metadata = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			st.Metadata[k] = v
		}
		blob, err := json.Marshal(st.Metadata)
		if err != nil {
			return err
		}
		_, err = s.stmtUpdateMetadata.ExecContext(ctx, key.RepoURL, key.AgentRole, key.AgentID, blob)
		return err
	})
}
