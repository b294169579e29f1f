package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session represents one daemon run against one camera. Parameters are
// snapshotted at start so recorded cycles stay interpretable after retuning.
type Session struct {
	SessionID   string          `json:"session_id"`
	Camera      string          `json:"camera"`
	ParamsJSON  json.RawMessage `json:"params_json,omitempty"`
	StartedAtNs int64           `json:"started_at_ns"`
	EndedAtNs   *int64          `json:"ended_at_ns,omitempty"`
}

// StartSession inserts a new session row. If session.SessionID is empty, a
// new UUID is generated; if StartedAtNs is zero, the current time is used.
func (db *DB) StartSession(session *Session) error {
	if session.SessionID == "" {
		session.SessionID = uuid.New().String()
	}
	if session.StartedAtNs == 0 {
		session.StartedAtNs = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(session.ParamsJSON) > 0 {
		paramsStr = string(session.ParamsJSON)
	}

	_, err := db.Exec(`
		INSERT INTO fusion_sessions (session_id, camera, params_json, started_at_ns)
		VALUES (?, ?, ?, ?)`,
		session.SessionID, session.Camera, paramsStr, session.StartedAtNs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time. Ending an already ended session
// overwrites the previous stamp.
func (db *DB) EndSession(sessionID string) error {
	result, err := db.Exec(
		`UPDATE fusion_sessions SET ended_at_ns = ? WHERE session_id = ?`,
		time.Now().UnixNano(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// GetSession fetches a session by id.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	var s Session
	var params sql.NullString
	var ended sql.NullInt64

	err := db.QueryRow(`
		SELECT session_id, camera, params_json, started_at_ns, ended_at_ns
		FROM fusion_sessions WHERE session_id = ?`, sessionID,
	).Scan(&s.SessionID, &s.Camera, &params, &s.StartedAtNs, &ended)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if params.Valid {
		s.ParamsJSON = json.RawMessage(params.String)
	}
	if ended.Valid {
		s.EndedAtNs = &ended.Int64
	}
	return &s, nil
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	rows, err := db.Query(`
		SELECT session_id, camera, params_json, started_at_ns, ended_at_ns
		FROM fusion_sessions ORDER BY started_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var params sql.NullString
		var ended sql.NullInt64
		if err := rows.Scan(&s.SessionID, &s.Camera, &params, &s.StartedAtNs, &ended); err != nil {
			return nil, err
		}
		if params.Valid {
			s.ParamsJSON = json.RawMessage(params.String)
		}
		if ended.Valid {
			s.EndedAtNs = &ended.Int64
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
