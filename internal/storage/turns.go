package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"

	"intervox/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT    NOT NULL,
	user_text       TEXT    NOT NULL,
	assistant_text  TEXT    NOT NULL,
	role            TEXT    NOT NULL DEFAULT '',
	question_number INTEGER NOT NULL DEFAULT 0,
	total_questions INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_session_idx ON turns (session_id, id);
`

type turnRow struct {
	ID             int64     `db:"id"`
	SessionID      string    `db:"session_id"`
	UserText       string    `db:"user_text"`
	AssistantText  string    `db:"assistant_text"`
	Role           string    `db:"role"`
	QuestionNumber int       `db:"question_number"`
	TotalQuestions int       `db:"total_questions"`
	CreatedAt      time.Time `db:"created_at"`
}

// TurnLog keeps a local transcript of interview exchanges in SQLite.
type TurnLog struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenTurnLog opens (creating if needed) the database at path and applies
// the schema.
func OpenTurnLog(path string) (*TurnLog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create turn log directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open turn log %q: %w", path, err)
	}
	// One connection keeps :memory: databases coherent and avoids
	// SQLITE_BUSY between the recorder and readers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply turn log schema: %w", err)
	}
	return &TurnLog{db: db, now: time.Now}, nil
}

func (l *TurnLog) Record(ctx context.Context, turn domain.Turn) error {
	row := turnRow{
		SessionID:      turn.SessionID,
		UserText:       turn.UserText,
		AssistantText:  turn.AssistantText,
		Role:           turn.Role,
		QuestionNumber: turn.QuestionNumber,
		TotalQuestions: turn.TotalQuestions,
		CreatedAt:      l.now().UTC(),
	}
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO turns (session_id, user_text, assistant_text, role, question_number, total_questions, created_at)
		VALUES (:session_id, :user_text, :assistant_text, :role, :question_number, :total_questions, :created_at);`, row)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// ListBySession returns the exchanges of one session in the order they
// happened.
func (l *TurnLog) ListBySession(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows := []turnRow{}
	err := l.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, user_text, assistant_text, role, question_number, total_questions, created_at
		FROM turns WHERE session_id = $1 ORDER BY id;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	turns := make([]domain.Turn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, domain.Turn{
			SessionID:      row.SessionID,
			UserText:       row.UserText,
			AssistantText:  row.AssistantText,
			Role:           row.Role,
			QuestionNumber: row.QuestionNumber,
			TotalQuestions: row.TotalQuestions,
		})
	}
	return turns, nil
}

func (l *TurnLog) Close() error {
	return l.db.Close()
}
