package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lancaster971/pilotproOS-sub003/internal/history"
)

// Sink 将监控事件写入 SQLite
type Sink struct {
	db *sql.DB
}

// New 创建 SQLite 归档
// DSN 格式:
//   - "sqlite:///path/to/file.db"
//   - "/path/to/file.db"
//   - ":memory:"
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// :memory: 数据库按连接隔离
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS monitor_events(
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		data TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Send 写入一条事件
func (s *Sink) Send(ctx context.Context, r history.Record) error {
	var data []byte
	if len(r.Data) > 0 {
		b, err := json.Marshal(r.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
		data = b
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_events(id, timestamp, level, message, data)
		VALUES(?, ?, ?, ?, ?);`,
		r.ID, r.OccurredAt.UTC(), r.Level, r.Message, string(data))
	return err
}

// Recent 按时间倒序读取最近的事件
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, level, message, data FROM monitor_events
		ORDER BY timestamp DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		var (
			r    history.Record
			ts   time.Time
			data sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.Level, &r.Message, &data); err != nil {
			return nil, err
		}
		r.OccurredAt = ts
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &r.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
