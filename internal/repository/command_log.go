package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/teslactl/internal/models"
)

// CommandLogRepository 命令记录仓库
type CommandLogRepository struct {
	db  *DB
	now func() time.Time
}

// NewCommandLogRepository 创建命令记录仓库
func NewCommandLogRepository(db *DB) *CommandLogRepository {
	return &CommandLogRepository{db: db, now: time.Now}
}

// Create 写入命令记录
func (r *CommandLogRepository) Create(ctx context.Context, l *models.CommandLog) error {
	query := `
		INSERT INTO command_logs (vin, command, success, http_status, message, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.now()
	}
	err := r.db.Pool.QueryRow(ctx, query,
		l.VIN,
		l.Command,
		l.Success,
		l.HTTPStatus,
		l.Message,
		l.DurationMs,
		l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert command log: %w", err)
	}
	return nil
}

// ListByVIN 按时间倒序分页获取命令记录
func (r *CommandLogRepository) ListByVIN(ctx context.Context, vin string, limit, offset int) ([]*models.CommandLog, error) {
	query := `
		SELECT id, vin, command, success, http_status, message, duration_ms, created_at
		FROM command_logs
		WHERE vin = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, vin, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list command logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.CommandLog, 0, limit)
	for rows.Next() {
		l := &models.CommandLog{}
		if err := rows.Scan(
			&l.ID,
			&l.VIN,
			&l.Command,
			&l.Success,
			&l.HTTPStatus,
			&l.Message,
			&l.DurationMs,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan command log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command logs: %w", err)
	}
	return logs, nil
}

// CountByVIN 统计车辆的命令记录数
func (r *CommandLogRepository) CountByVIN(ctx context.Context, vin string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM command_logs WHERE vin = $1`, vin).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count command logs: %w", err)
	}
	return count, nil
}
