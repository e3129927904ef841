// Package storage 凭据与令牌的安全键值存储
package storage

import (
	"context"
	"sync"
)

// 存储键
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyAuthState    = "auth_state"
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyVIN          = "vin"
	KeyBaseURL      = "base_url"
)

// Store 键值存储
// Get 对不存在的键返回空字符串；Put 原子写入一组键，空值表示删除
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, values map[string]string) error
}

// Memory 内存存储
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *Memory) Put(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(m.values, values)
	return nil
}

func apply(dst, values map[string]string) {
	for k, v := range values {
		if v == "" {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

// Clear 生成删除指定键的写入集合
func Clear(keys ...string) map[string]string {
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		values[k] = ""
	}
	return values
}
