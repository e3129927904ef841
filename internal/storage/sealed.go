package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/langchou/teslactl/internal/crypto"
)

// Sealed 对每个值单独加密后写入底层存储（例如数据库）
// 键名作为 AAD，防止密文在键之间被挪用
type Sealed struct {
	inner Store
	key   []byte
}

// 底层存储中的明文元数据
const (
	keySealSalt  = "seal_salt"
	keySealCheck = "seal_check"
	sealCheck    = "teslactl"
)

// ErrWrongPassphrase 口令与已有数据不匹配
var ErrWrongPassphrase = errors.New("wrong store passphrase")

// OpenSealed 读取或初始化 salt，并校验口令
func OpenSealed(ctx context.Context, inner Store, passphrase string) (*Sealed, error) {
	raw, err := inner.Get(ctx, keySealSalt)
	if err != nil {
		return nil, fmt.Errorf("retrieve salt: %w", err)
	}

	if raw == "" {
		salt, err := crypto.Rand(crypto.SaltLen)
		if err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		s := NewSealed(inner, passphrase, salt)
		check, err := crypto.Seal(s.key, []byte(sealCheck), []byte(keySealCheck))
		if err != nil {
			return nil, fmt.Errorf("seal check value: %w", err)
		}
		if err := inner.Put(ctx, map[string]string{
			keySealSalt:  base64.StdEncoding.EncodeToString(salt),
			keySealCheck: base64.StdEncoding.EncodeToString(check),
		}); err != nil {
			return nil, fmt.Errorf("store salt: %w", err)
		}
		return s, nil
	}

	salt, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	s := NewSealed(inner, passphrase, salt)
	if v, err := s.Get(ctx, keySealCheck); err != nil || v != sealCheck {
		return nil, ErrWrongPassphrase
	}
	return s, nil
}

// NewSealed 使用口令和固定 salt 派生密钥
func NewSealed(inner Store, passphrase string, salt []byte) *Sealed {
	return &Sealed{inner: inner, key: crypto.DeriveKey([]byte(passphrase), salt)}
}

func (s *Sealed) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil || raw == "" {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decode sealed %s: %w", key, err)
	}
	plain, err := crypto.Open(s.key, sealed, []byte(key))
	if err != nil {
		return "", fmt.Errorf("open sealed %s: %w", key, err)
	}
	return string(plain), nil
}

func (s *Sealed) Put(ctx context.Context, values map[string]string) error {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if v == "" {
			out[k] = ""
			continue
		}
		sealed, err := crypto.Seal(s.key, []byte(v), []byte(k))
		if err != nil {
			return fmt.Errorf("seal %s: %w", k, err)
		}
		out[k] = base64.StdEncoding.EncodeToString(sealed)
	}
	return s.inner.Put(ctx, out)
}
