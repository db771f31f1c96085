package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quantlab/internal/backtest"
)

// ErrNotFound 表示指定 ID 的结果不存在。
var ErrNotFound = errors.New("store: 回测结果不存在")

// ResultSummary 为列表查询返回的摘要行，不携带完整载荷。
type ResultSummary struct {
	ID          string    `json:"id"`
	Strategy    string    `json:"strategy"`
	Symbol      string    `json:"symbol"`
	CreatedAt   time.Time `json:"created_at"`
	TotalReturn float64   `json:"total_return"`
	Sharpe      float64   `json:"sharpe"`
	MaxDrawdown float64   `json:"max_drawdown"`
}

// SaveResult 将完整结果序列化后入库，摘要列冗余存储便于筛选。
func (s *Store) SaveResult(ctx context.Context, result *backtest.Result) error {
	if result == nil {
		return fmt.Errorf("store: 结果不能为空")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化回测结果失败: %w", err)
	}

	const query = `
INSERT INTO backtest_results (id, strategy, symbol, created_at, total_return, sharpe, max_drawdown, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		result.ID,
		result.Strategy,
		result.Symbol,
		result.CreatedAt,
		result.Metrics.TotalReturn,
		result.Metrics.SharpeRatio,
		result.Metrics.MaxDrawdown,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("写入回测结果失败: %w", err)
	}
	return nil
}

// GetResult 按 ID 读取完整结果。
func (s *Store) GetResult(ctx context.Context, id string) (*backtest.Result, error) {
	const query = `SELECT payload FROM backtest_results WHERE id = ?`

	var payload string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取回测结果失败: %w", err)
	}

	var result backtest.Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("反序列化回测结果失败: %w", err)
	}
	return &result, nil
}

// ListResults 按创建时间倒序返回摘要，strategy 为空则不过滤。
func (s *Store) ListResults(ctx context.Context, strategy string, limit int) ([]ResultSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT id, strategy, symbol, created_at, total_return, sharpe, max_drawdown
FROM backtest_results`
	args := []interface{}{}
	if strategy != "" {
		query += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询回测结果失败: %w", err)
	}
	defer rows.Close()

	var summaries []ResultSummary
	for rows.Next() {
		var summary ResultSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.Strategy,
			&summary.Symbol,
			&summary.CreatedAt,
			&summary.TotalReturn,
			&summary.Sharpe,
			&summary.MaxDrawdown,
		); err != nil {
			return nil, fmt.Errorf("扫描回测结果行失败: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历回测结果失败: %w", err)
	}
	return summaries, nil
}
