package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// SettingsRepository secure_settings 表的键值存储，实现 storage.Store
// 值由上层 storage.Sealed 加密后写入
type SettingsRepository struct {
	db  *DB
	now func() time.Time
}

// NewSettingsRepository 创建设置仓库
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db, now: time.Now}
}

// Get 读取键值，不存在时返回空字符串
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM secure_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// Put 在一个事务内写入多个键值，空值表示删除
func (r *SettingsRepository) Put(ctx context.Context, values map[string]string) (err error) {
	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit settings: %w", e)
		}
	}()

	const upsert = `
		INSERT INTO secure_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	const del = `DELETE FROM secure_settings WHERE key = $1`

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := r.now()
	for _, k := range keys {
		if v := values[k]; v == "" {
			_, err = tx.Exec(ctx, del, k)
		} else {
			_, err = tx.Exec(ctx, upsert, k, v, now)
		}
		if err != nil {
			return fmt.Errorf("put setting %s: %w", k, err)
		}
	}
	return nil
}
