package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/langchou/teslactl/internal/crypto"
)

// fileAAD 绑定密文与文件格式版本
var fileAAD = []byte("teslactl-store-v1")

// fileEnvelope 磁盘上的文件格式
type fileEnvelope struct {
	Salt []byte `json:"salt"`
	Data []byte `json:"data"`
}

// File 整文件加密的本地存储
// 每次 Get 都重新读取磁盘，Put 以写临时文件再 rename 的方式原子替换
type File struct {
	mu   sync.Mutex
	path string
	salt []byte
	key  []byte
}

// NewFile 打开或初始化加密存储文件
func NewFile(path, passphrase string) (*File, error) {
	f := &File{path: path}

	env, err := f.readEnvelope()
	switch {
	case err == nil:
		f.salt = env.Salt
	case errors.Is(err, os.ErrNotExist):
		salt, err := crypto.Rand(crypto.SaltLen)
		if err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		f.salt = salt
	default:
		return nil, err
	}

	f.key = crypto.DeriveKey([]byte(passphrase), f.salt)

	// 校验口令
	if _, err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (f *File) Put(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.load()
	if err != nil {
		return err
	}
	apply(current, values)
	return f.save(current)
}

func (f *File) readEnvelope() (*fileEnvelope, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode store file: %w", err)
	}
	if len(env.Salt) != crypto.SaltLen {
		return nil, fmt.Errorf("decode store file: bad salt length %d", len(env.Salt))
	}
	return &env, nil
}

func (f *File) load() (map[string]string, error) {
	env, err := f.readEnvelope()
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}

	plain, err := crypto.Open(f.key, env.Data, fileAAD)
	if err != nil {
		return nil, fmt.Errorf("open store file (wrong passphrase?): %w", err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("decode store values: %w", err)
	}
	return values, nil
}

func (f *File) save(values map[string]string) error {
	plain, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode store values: %w", err)
	}
	sealed, err := crypto.Seal(f.key, plain, fileAAD)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fileEnvelope{Salt: f.salt, Data: sealed}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
