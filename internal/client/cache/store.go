package cache

import (
	"Homestead/internal/model"
	"context"
	"database/sql"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SnapshotKey 快照在缓存中的固定键
const SnapshotKey = "notifications"

// Entry 一次快照写入
type Entry struct {
	Snapshot  []*model.Notification
	Version   int64
	WrittenAt time.Time
	Writer    string
}

type entryRow struct {
	Key       string `db:"key"`
	Payload   string `db:"payload"`
	Version   int64  `db:"version"`
	WrittenAt int64  `db:"written_at"`
	Writer    string `db:"writer"`
}

// Store 同一台机器上多个标签页共享的本地快照缓存
// 每次写入版本号单调递增，其它标签页通过轮询版本号感知变化
type Store struct {
	db     *sqlx.DB
	writer string
}

// Open 打开 (或创建) path 处的缓存库，writer 为当前标签页标识
func Open(path, writer string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	// 单连接，写入在本进程内天然串行
	db.SetMaxOpenConns(1)

	s := &Store{db: db, writer: writer}
	if err = s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Writer 当前标签页标识
func (s *Store) Writer() string {
	return s.writer
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var tableCount int
	err = tx.Get(&tableCount, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	currentVersion := 0
	if tableCount > 0 {
		if err = tx.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err = tx.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return tx.Commit()
}

// Save 覆盖写入快照，返回新版本号
func (s *Store) Save(ctx context.Context, snapshot []*model.Notification) (int64, error) {
	if snapshot == nil {
		snapshot = make([]*model.Notification, 0)
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("marshaling snapshot: %w", err)
	}

	const query = `
		INSERT INTO cache_entries (key, payload, version, written_at, writer)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload    = excluded.payload,
			version    = cache_entries.version + 1,
			written_at = excluded.written_at,
			writer     = excluded.writer
		RETURNING version`

	var version int64
	err = s.db.GetContext(ctx, &version, query, SnapshotKey, string(payload), time.Now().UnixMilli(), s.writer)
	if err != nil {
		return 0, fmt.Errorf("saving snapshot: %w", err)
	}
	return version, nil
}

// Load 读取最近一次写入，缓存为空时返回 nil, nil
func (s *Store) Load(ctx context.Context) (*Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, "SELECT key, payload, version, written_at, writer FROM cache_entries WHERE key = ?", SnapshotKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	var snapshot []*model.Notification
	if err = json.Unmarshal([]byte(row.Payload), &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot v%d: %w", row.Version, err)
	}
	return &Entry{
		Snapshot:  snapshot,
		Version:   row.Version,
		WrittenAt: time.UnixMilli(row.WrittenAt),
		Writer:    row.Writer,
	}, nil
}

// Watch 每隔 interval 检查一次版本号，把其它标签页写入的、版本大于 since 的快照交给 fn
// 自己写入的版本只推进游标，不回调。阻塞直到 ctx 结束
func (s *Store) Watch(ctx context.Context, since int64, interval time.Duration, fn func(*Entry)) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := since
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var version int64
		err := s.db.GetContext(ctx, &version, "SELECT version FROM cache_entries WHERE key = ?", SnapshotKey)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
				log.WarnContext(ctx, "poll cache version failed", "err", err)
			}
			continue
		}
		if version <= last {
			continue
		}

		entry, err := s.Load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.WarnContext(ctx, "load cache entry failed", "err", err)
			}
			continue
		}
		if entry == nil {
			continue
		}
		last = entry.Version
		if entry.Writer == s.writer {
			continue
		}
		fn(entry)
	}
}
