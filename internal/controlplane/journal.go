// Package controlplane 运行时外围：sqlite 交易日志 + 状态 HTTP 服务
// 账本本身保持内存态；交易历史落盘到 sqlite，解决长时间运行下历史无上限增长的问题
package controlplane

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zorabot/gozora/internal/domain"
	"github.com/zorabot/gozora/internal/ports"
)

// Journal sqlite 交易日志
type Journal struct {
	db *sql.DB
}

// OpenJournal 打开（或创建）交易日志数据库
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建 journal 目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id         TEXT PRIMARY KEY,
    ts         TEXT NOT NULL,
    direction  TEXT NOT NULL,
    symbol     TEXT NOT NULL,
    amount     REAL NOT NULL,
    price      REAL NOT NULL,
    value_usd  REAL NOT NULL,
    tx_hash    TEXT NOT NULL DEFAULT '',
    simulated  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("初始化 journal 表失败: %w", err)
	}
	return nil
}

// Append 追加一条交易记录
func (j *Journal) Append(record *domain.TradeRecord) error {
	if record == nil {
		return errors.New("记录不能为空")
	}
	_, err := j.db.Exec(
		`INSERT INTO trades (id, ts, direction, symbol, amount, price, value_usd, tx_hash, simulated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
		string(record.Direction),
		record.Symbol,
		record.Amount,
		record.Price,
		record.ValueUSD,
		record.TxHash,
		boolToInt(record.Simulated),
	)
	if err != nil {
		return fmt.Errorf("写入交易记录失败: %w", err)
	}
	return nil
}

// Recent 返回最近的 limit 条交易记录（时间倒序）
func (j *Journal) Recent(limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(
		`SELECT id, ts, direction, symbol, amount, price, value_usd, tx_hash, simulated
		 FROM trades ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询交易记录失败: %w", err)
	}
	defer rows.Close()

	var out []*domain.TradeRecord
	for rows.Next() {
		var (
			r         domain.TradeRecord
			ts        string
			direction string
			simulated int
		)
		if err := rows.Scan(&r.ID, &ts, &direction, &r.Symbol, &r.Amount, &r.Price, &r.ValueUSD, &r.TxHash, &simulated); err != nil {
			return nil, fmt.Errorf("读取交易记录失败: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.Timestamp = t
		}
		r.Direction = domain.SignalKind(direction)
		r.Simulated = simulated != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.TradeJournal = (*Journal)(nil)
