package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quorum/internal/consensus"

	_ "modernc.org/sqlite"
)

// Store 将共识引擎的否决/决策事件写入 SQLite，供审计与排查。
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

var _ consensus.EventSink = (*Store)(nil)

// Entry 代表一条审计记录。
type Entry struct {
	ID              int64           `json:"id"`
	Timestamp       int64           `json:"ts"`
	CycleID         string          `json:"cycle_id"`
	Symbol          string          `json:"symbol"`
	Outcome         string          `json:"outcome"`
	ReasonCode      string          `json:"reason_code,omitempty"`
	Vetoed          bool            `json:"vetoed"`
	Action          string          `json:"action"`
	Confidence      int             `json:"confidence"`
	Reason          string          `json:"reason,omitempty"`
	Threshold       float64         `json:"threshold"`
	ThresholdSource string          `json:"threshold_source,omitempty"`
	DurationMs      int64           `json:"duration_ms"`
	Details         map[string]any  `json:"details,omitempty"`
	Decisions       json.RawMessage `json:"decisions,omitempty"`
}

// Query 用于筛选审计记录。
type Query struct {
	Symbol     string
	ReasonCode string
	CycleID    string
	VetoedOnly bool
	Limit      int
	Offset     int
}

// New 初始化 SQLite 存储。
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB 复用外部初始化的连接（例如与其他表共用一个文件）。
func (s *Store) UseExternalDB(db *sql.DB) error {
	if s == nil {
		return fmt.Errorf("audit store 未初始化")
	}
	if db == nil {
		return fmt.Errorf("external db 不能为空")
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// Close 关闭底层 DB。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("audit store 未初始化")
	}
	return db, nil
}

// Record 实现 consensus.EventSink。
func (s *Store) Record(ctx context.Context, ev consensus.Event) error {
	var decisions json.RawMessage
	if len(ev.Decisions) > 0 {
		if b, err := json.Marshal(ev.Decisions); err == nil {
			decisions = b
		}
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.Insert(ctx, Entry{
		Timestamp:       ts.UnixMilli(),
		CycleID:         ev.CycleID,
		Symbol:          ev.Symbol,
		Outcome:         ev.Outcome(),
		ReasonCode:      string(ev.ReasonCode),
		Vetoed:          ev.Vetoed,
		Action:          string(ev.Action),
		Confidence:      ev.Confidence,
		Reason:          ev.Reason,
		Threshold:       ev.Threshold,
		ThresholdSource: string(ev.ThresholdSource),
		DurationMs:      ev.Duration.Milliseconds(),
		Details:         ev.Details,
		Decisions:       decisions,
	})
	return err
}

// Insert 写入一条记录。
func (s *Store) Insert(ctx context.Context, e Entry) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	ts := e.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	details := ""
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			details = string(b)
		}
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO consensus_events
			(ts, cycle_id, symbol, outcome, reason_code, vetoed, action, confidence, reason,
			 threshold, threshold_source, duration_ms, details_json, decisions_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts,
		e.CycleID,
		strings.ToUpper(strings.TrimSpace(e.Symbol)),
		e.Outcome,
		e.ReasonCode,
		boolToInt(e.Vetoed),
		e.Action,
		e.Confidence,
		e.Reason,
		e.Threshold,
		e.ThresholdSource,
		e.DurationMs,
		details,
		string(e.Decisions),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

const selectColumns = `SELECT id, ts, cycle_id, symbol, outcome, reason_code, vetoed, action, confidence,
		reason, threshold, threshold_source, duration_ms, details_json, decisions_json
		FROM consensus_events`

// Recent 返回最新的记录，支持按 symbol/reason_code/cycle 过滤。
func (s *Store) Recent(ctx context.Context, q Query) ([]Entry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	filterSQL, args := buildFilter(q)
	args = append(args, limit, offset)
	rows, err := db.QueryContext(ctx, selectColumns+filterSQL+" ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Count 统计满足筛选条件的记录数量。
func (s *Store) Count(ctx context.Context, q Query) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	filterSQL, args := buildFilter(q)
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(1) FROM consensus_events"+filterSQL, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func buildFilter(q Query) (string, []any) {
	var args []any
	var sb strings.Builder
	sb.WriteString(" WHERE 1=1")
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		sb.WriteString(" AND symbol=?")
		args = append(args, sym)
	}
	if code := strings.ToUpper(strings.TrimSpace(q.ReasonCode)); code != "" {
		sb.WriteString(" AND reason_code=?")
		args = append(args, code)
	}
	if id := strings.TrimSpace(q.CycleID); id != "" {
		sb.WriteString(" AND cycle_id=?")
		args = append(args, id)
	}
	if q.VetoedOnly {
		sb.WriteString(" AND vetoed=1")
	}
	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(scanner rowScanner) (Entry, error) {
	var (
		e         Entry
		code      sql.NullString
		reason    sql.NullString
		source    sql.NullString
		vetoed    sql.NullInt64
		details   sql.NullString
		decisions sql.NullString
	)
	if err := scanner.Scan(&e.ID, &e.Timestamp, &e.CycleID, &e.Symbol, &e.Outcome, &code, &vetoed,
		&e.Action, &e.Confidence, &reason, &e.Threshold, &source, &e.DurationMs, &details, &decisions); err != nil {
		return e, err
	}
	e.ReasonCode = code.String
	e.Reason = reason.String
	e.ThresholdSource = source.String
	e.Vetoed = vetoed.Valid && vetoed.Int64 != 0
	if details.String != "" {
		_ = json.Unmarshal([]byte(details.String), &e.Details)
	}
	if decisions.String != "" {
		e.Decisions = json.RawMessage(decisions.String)
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
