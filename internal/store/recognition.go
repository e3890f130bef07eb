package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidType is returned for recognition types other than Face, Pose and Gesture.
	ErrInvalidType = errors.New("invalid recognition type")
	// ErrInvalidData is returned when the log payload is empty or not JSON.
	ErrInvalidData = errors.New("invalid recognition data")
)

// RecognitionType is the MediaPipe task that produced a log entry.
type RecognitionType string

const (
	RecognitionFace    RecognitionType = "Face"
	RecognitionPose    RecognitionType = "Pose"
	RecognitionGesture RecognitionType = "Gesture"
)

// Valid reports whether t is one of the known recognition types.
func (t RecognitionType) Valid() bool {
	switch t {
	case RecognitionFace, RecognitionPose, RecognitionGesture:
		return true
	}
	return false
}

// Paging defaults for List.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Recognition is one stored recognition log.
type Recognition struct {
	ID        string          `json:"id"`
	Type      RecognitionType `json:"type_recognition"`
	Data      json.RawMessage `json:"log_info"`
	CreatedAt time.Time       `json:"created_at"`
}

// RecognitionRepository provides access to the recognition_logs table.
type RecognitionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Recognitions returns the recognition repository for this store.
func (s *Store) Recognitions() *RecognitionRepository {
	return &RecognitionRepository{db: s.db, now: time.Now}
}

// Create validates and inserts a new recognition log.
func (r *RecognitionRepository) Create(ctx context.Context, t RecognitionType, data json.RawMessage) (*Recognition, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	if len(data) == 0 || !json.Valid(data) {
		return nil, ErrInvalidData
	}

	rec := &Recognition{
		ID:        uuid.NewString(),
		Type:      t,
		Data:      data,
		CreatedAt: r.now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recognition_logs (id, type_recognition, log_info, created_at)
		 VALUES (?, ?, ?, ?)`,
		rec.ID, string(rec.Type), string(rec.Data), rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recognition log: %w", err)
	}

	return rec, nil
}

// Get retrieves a recognition log by its ID.
func (r *RecognitionRepository) Get(ctx context.Context, id string) (*Recognition, error) {
	rec := &Recognition{}
	var recType, data string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, type_recognition, log_info, created_at
		 FROM recognition_logs WHERE id = ?`,
		id,
	).Scan(&rec.ID, &recType, &data, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec.Type = RecognitionType(recType)
	rec.Data = json.RawMessage(data)
	return rec, nil
}

// List returns logs newest first. An empty t lists every type. A limit of
// zero or less means DefaultListLimit; larger limits are capped at MaxListLimit.
func (r *RecognitionRepository) List(ctx context.Context, t RecognitionType, limit, offset int) ([]Recognition, error) {
	if t != "" && !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	query := `SELECT id, type_recognition, log_info, created_at FROM recognition_logs`
	args := []any{}
	if t != "" {
		query += ` WHERE type_recognition = ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []Recognition{}
	for rows.Next() {
		var rec Recognition
		var recType, data string
		if err := rows.Scan(&rec.ID, &recType, &data, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Type = RecognitionType(recType)
		rec.Data = json.RawMessage(data)
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

// Count returns the number of stored logs, optionally filtered by type.
func (r *RecognitionRepository) Count(ctx context.Context, t RecognitionType) (int, error) {
	if t != "" && !t.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}

	query := `SELECT COUNT(*) FROM recognition_logs`
	args := []any{}
	if t != "" {
		query += ` WHERE type_recognition = ?`
		args = append(args, string(t))
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
