package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/langchou/teslactl/internal/config"
	"github.com/langchou/teslactl/internal/storage"
)

// ErrInvalidSettings 设置校验未通过
var ErrInvalidSettings = errors.New("invalid settings")

// SettingsView 对外展示的设置，密钥打码
type SettingsView struct {
	VIN          string            `json:"vin"`
	BaseURL      string            `json:"base_url"`
	ClientID     string            `json:"client_id"`
	ClientSecret string            `json:"client_secret"`
	Validation   map[string]string `json:"validation"`
	Valid        bool              `json:"valid"`
}

// ValidationError 字段校验失败
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	bad := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		bad = append(bad, k+"="+v)
	}
	sort.Strings(bad)
	return fmt.Sprintf("%s: %s", ErrInvalidSettings, strings.Join(bad, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSettings }

// Settings 读取当前设置
func (s *CommandService) Settings(ctx context.Context) (*SettingsView, error) {
	cur, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	return view(cur), nil
}

// UpdateSettings 校验并保存设置，VIN 或地址变化时重建会话
func (s *CommandService) UpdateSettings(ctx context.Context, in config.Settings) (*SettingsView, error) {
	in = config.Settings{
		VIN:          strings.TrimSpace(in.VIN),
		BaseURL:      strings.TrimSpace(in.BaseURL),
		ClientID:     strings.TrimSpace(in.ClientID),
		ClientSecret: strings.TrimSpace(in.ClientSecret),
	}

	cur, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	// 未修改的密钥以打码形式回传
	if in.ClientSecret == "" || in.ClientSecret == mask(cur.ClientSecret) {
		in.ClientSecret = cur.ClientSecret
	}

	if !in.Valid() {
		fields := make(map[string]string)
		for k, st := range in.Validation() {
			if st != config.Valid {
				fields[k] = st.String()
			}
		}
		return nil, &ValidationError{Fields: fields}
	}

	if err := s.store.Put(ctx, map[string]string{
		storage.KeyVIN:          in.VIN,
		storage.KeyBaseURL:      in.BaseURL,
		storage.KeyClientID:     in.ClientID,
		storage.KeyClientSecret: in.ClientSecret,
	}); err != nil {
		return nil, fmt.Errorf("store settings: %w", err)
	}

	if session := s.Session(); session == nil || session.VIN() != in.VIN || session.BaseURL() != in.BaseURL {
		s.setSession(in.VIN, in.BaseURL)
	}
	return view(in), nil
}

func (s *CommandService) loadSettings(ctx context.Context) (config.Settings, error) {
	var cur config.Settings
	for key, dst := range map[string]*string{
		storage.KeyVIN:          &cur.VIN,
		storage.KeyBaseURL:      &cur.BaseURL,
		storage.KeyClientID:     &cur.ClientID,
		storage.KeyClientSecret: &cur.ClientSecret,
	} {
		v, err := s.store.Get(ctx, key)
		if err != nil {
			return config.Settings{}, fmt.Errorf("retrieve %s: %w", key, err)
		}
		*dst = v
	}
	return cur, nil
}

func view(st config.Settings) *SettingsView {
	validation := make(map[string]string, 4)
	for k, v := range st.Validation() {
		validation[k] = v.String()
	}
	return &SettingsView{
		VIN:          st.VIN,
		BaseURL:      st.BaseURL,
		ClientID:     st.ClientID,
		ClientSecret: mask(st.ClientSecret),
		Validation:   validation,
		Valid:        st.Valid(),
	}
}

// mask 保留前缀和末 4 位
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 14 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:10] + strings.Repeat("*", len(secret)-14) + secret[len(secret)-4:]
}
