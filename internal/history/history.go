package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iabetor/briefcast/internal/logger"
)

// Event 播放历史中的事件类型。
type Event string

const (
	EventGenerated Event = "generated" // 新简报生成并播放
	EventReplayed  Event = "replayed"  // 从简报库重播
	EventSaved     Event = "saved"     // 保存到简报库
)

// Entry 一条播放历史记录。
type Entry struct {
	ID         int64
	Event      Event
	Topic      string
	BriefingID string // 关联的简报库 id，未保存的简报为空
	Duration   float64
	CreatedAt  time.Time
}

// Store 基于 SQLite 的播放历史存储。
type Store struct {
	db   *sql.DB
	path string
}

// Open 打开或创建历史数据库并运行迁移。
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("历史数据库路径不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// WAL 模式提升并发读写性能
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("[history] 历史数据库已打开: %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS playback_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			topic TEXT NOT NULL,
			briefing_id TEXT DEFAULT '',
			duration REAL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_created_at ON playback_history(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_topic ON playback_history(topic)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}
	return nil
}

// Record 写入一条历史记录。
func (s *Store) Record(event Event, topic, briefingID string, duration float64) error {
	_, err := s.db.Exec(
		`INSERT INTO playback_history (event, topic, briefing_id, duration) VALUES (?, ?, ?, ?)`,
		string(event), topic, briefingID, duration,
	)
	if err != nil {
		return fmt.Errorf("写入历史记录失败: %w", err)
	}
	return nil
}

// Recent 返回最近的至多 limit 条历史记录，按时间倒序。
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, event, topic, briefing_id, duration, created_at
		 FROM playback_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var event string
		if err := rows.Scan(&e.ID, &event, &e.Topic, &e.BriefingID, &e.Duration, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取历史记录失败: %w", err)
		}
		e.Event = Event(event)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByTopic 返回某主题的历史记录条数。
func (s *Store) CountByTopic(topic string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM playback_history WHERE topic = ?`, topic).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计历史记录失败: %w", err)
	}
	return n, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
