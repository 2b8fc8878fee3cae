package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// 连接池配置
const (
	DefaultMaxOpenConns = 25
	DefaultMaxIdleConns = 10
	ConnMaxLifetime     = time.Hour
)

// ErrNoSnapshot 指定范围尚无快照
var ErrNoSnapshot = errors.New("no snapshot")

// Store 快照与报警操作审计的持久化
type Store struct {
	db     *sql.DB
	driver string
	log    *zap.Logger
}

// Open 打开数据库并执行建表
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*Store, error) {
	maxOpen, maxIdle := DefaultMaxOpenConns, DefaultMaxIdleConns
	if driver == DriverSQLite {
		// sqlite 单写者
		maxOpen, maxIdle = 1, 1
	}

	db, err := openDB(driver, dsn, maxOpen, maxIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	s := New(db, driver, log)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info("database initialized", zap.String("driver", driver), zap.Int("max_open", maxOpen))
	return s, nil
}

// New 包装已有连接（测试中用于 sqlmock）
func New(db *sql.DB, driver string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, driver: driver, log: log.Named("database")}
}

func openDB(driver, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping 健康检查
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 关闭连接
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver 当前驱动名
func (s *Store) Driver() string {
	return s.driver
}

// rebind 把 ? 占位符改写为 postgres 的 $n
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func queryList[T any](ctx context.Context, s *Store, query string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
