// Package auth 管理 Tesla OAuth2 授权码流程与令牌生命周期
//
// 流程：
//  1. InitiateAuthFlow 生成授权地址，用户在浏览器中登录并授权
//  2. 授权服务器携带 code/state 回调
//  3. ExchangeCodeForTokens 校验 state 后用 code 换取 access/refresh token
//  4. AccessToken 在剩余寿命低于 20% 时自动刷新
package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/langchou/teslactl/internal/storage"
)

// 错误定义
var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrMissingClientID     = errors.New("client ID is missing")
	ErrMissingClientSecret = errors.New("client secret is missing")
	ErrMissingCode         = errors.New("authorization code missing from callback URI")
	ErrMissingState        = errors.New("authorization state missing from callback URI")
	ErrStateMismatch       = errors.New("CSRF protection violated: state mismatch")
)

// Config OAuth2 端点配置
type Config struct {
	AuthURL     string
	TokenURL    string
	Audience    string
	RedirectURI string
	Scopes      []string
	Locale      string
}

// Token 令牌端点响应
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenInfo 当前令牌状态
type TokenInfo struct {
	ExpiresAt       time.Time `json:"expires_at"`
	LifeRemaining   int       `json:"life_remaining"`
	HasRefreshToken bool      `json:"has_refresh_token"`
}

// Manager 令牌管理器
// 令牌始终从存储中读取，不在内存中缓存
type Manager struct {
	cfg        Config
	store      storage.Store
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	refreshGroup singleflight.Group
}

// Option 管理器选项
type Option func(*Manager)

// WithHTTPClient 指定访问令牌端点的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithClock 指定时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager 创建令牌管理器
func NewManager(cfg Config, store storage.Store, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		store: store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitiateAuthFlow 生成授权地址并保存 CSRF state
func (m *Manager) InitiateAuthFlow(ctx context.Context) (string, error) {
	clientID, err := m.store.Get(ctx, storage.KeyClientID)
	if err != nil {
		return "", fmt.Errorf("retrieve client id: %w", err)
	}
	if strings.TrimSpace(clientID) == "" {
		m.logger.Debug("Client ID is missing")
		return "", ErrMissingClientID
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := m.store.Put(ctx, map[string]string{storage.KeyAuthState: state}); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}

	oc := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: m.cfg.RedirectURI,
		Scopes:      m.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  m.cfg.AuthURL,
			TokenURL: m.cfg.TokenURL,
		},
	}
	authURL := oc.AuthCodeURL(state,
		oauth2.SetAuthURLParam("locale", m.cfg.Locale),
		oauth2.SetAuthURLParam("prompt", "login"),
	)

	m.logger.Info("Generated authorization URL", zap.String("auth_host", m.cfg.AuthURL))
	return authURL, nil
}

// ExchangeCodeForTokens 处理授权回调，用 code 换取令牌
// 请求新令牌之前会先清除旧令牌，换取失败时用户处于未登录状态
func (m *Manager) ExchangeCodeForTokens(ctx context.Context, callbackURI string) error {
	u, err := url.Parse(callbackURI)
	if err != nil {
		return fmt.Errorf("invalid callback URI: %w", err)
	}
	q := u.Query()

	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		m.logger.Error("Authorization code missing from callback")
		return ErrMissingCode
	}
	state := strings.TrimSpace(q.Get("state"))
	if state == "" {
		m.logger.Error("Authorization state missing from callback")
		return ErrMissingState
	}

	storedState, err := m.store.Get(ctx, storage.KeyAuthState)
	if err != nil {
		return fmt.Errorf("retrieve state: %w", err)
	}
	if storedState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(storedState)) != 1 {
		m.logger.Error("State mismatch in OAuth callback")
		return ErrStateMismatch
	}
	if err := m.store.Put(ctx, storage.Clear(storage.KeyAuthState)); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}

	clientID, clientSecret, err := m.credentials(ctx)
	if err != nil {
		return err
	}
	if clientSecret == "" {
		return ErrMissingClientSecret
	}

	if err := m.store.Put(ctx, storage.Clear(storage.KeyAccessToken, storage.KeyRefreshToken)); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
		"audience":      {m.cfg.Audience},
		"redirect_uri":  {m.cfg.RedirectURI},
	}
	if _, err := m.fetchAndStoreTokens(ctx, form); err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	m.logger.Info("Authorization code exchanged for tokens")
	return nil
}

// AccessToken 返回可用的 access token
// 剩余寿命低于 RefreshThreshold 或无法解析时先刷新；所有失败都包装为 ErrNotAuthenticated
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	accessToken, refreshToken, err := m.tokens(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if accessToken == "" {
		m.logger.Debug("Access token is missing")
		return "", fmt.Errorf("%w: access token is missing", ErrNotAuthenticated)
	}
	if refreshToken == "" {
		m.logger.Debug("Refresh token is missing")
		return "", fmt.Errorf("%w: refresh token is missing", ErrNotAuthenticated)
	}

	life, _, err := LifeRemaining(accessToken, m.now())
	if err == nil && life >= RefreshThreshold {
		return accessToken, nil
	}

	if err != nil {
		m.logger.Debug("Cannot evaluate token life, refreshing", zap.Error(err))
	} else {
		m.logger.Debug("Token life below threshold, refreshing", zap.Int("life_remaining", life))
	}

	if err := m.RefreshAccessToken(ctx); err != nil {
		m.logger.Error("Token refresh failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	accessToken, refreshToken, err = m.tokens(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if accessToken == "" || refreshToken == "" {
		return "", fmt.Errorf("%w: tokens missing after refresh", ErrNotAuthenticated)
	}
	return accessToken, nil
}

// RefreshAccessToken 使用 refresh token 换取新令牌
// 并发调用共享同一次刷新请求；失败时保留已存储的令牌
// 共享的请求不随发起者的 ctx 取消，每个调用者只在自己的 ctx 结束时提前返回
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	ch := m.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("Joined in-flight token refresh")
		}
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("token refresh: %w", ctx.Err())
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	clientID, _, err := m.credentials(ctx)
	if err != nil {
		return err
	}

	refreshToken, err := m.store.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("retrieve refresh token: %w", err)
	}
	if refreshToken == "" {
		return errors.New("refresh token is missing")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
	}
	if _, err := m.fetchAndStoreTokens(ctx, form); err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}

	m.logger.Info("Access token refreshed")
	return nil
}

// TokenLife 返回当前 access token 的过期时间和剩余寿命
func (m *Manager) TokenLife(ctx context.Context) (TokenInfo, error) {
	accessToken, refreshToken, err := m.tokens(ctx)
	if err != nil {
		return TokenInfo{}, err
	}
	if accessToken == "" {
		return TokenInfo{}, fmt.Errorf("%w: access token is missing", ErrNotAuthenticated)
	}

	life, exp, err := LifeRemaining(accessToken, m.now())
	if err != nil {
		return TokenInfo{}, err
	}
	return TokenInfo{
		ExpiresAt:       exp,
		LifeRemaining:   life,
		HasRefreshToken: refreshToken != "",
	}, nil
}

// Logout 清除令牌与未完成的授权 state
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Put(ctx, storage.Clear(storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyAuthState)); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	m.logger.Info("Tokens cleared")
	return nil
}

func (m *Manager) tokens(ctx context.Context) (string, string, error) {
	accessToken, err := m.store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		return "", "", fmt.Errorf("retrieve access token: %w", err)
	}
	refreshToken, err := m.store.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("retrieve refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (m *Manager) credentials(ctx context.Context) (string, string, error) {
	clientID, err := m.store.Get(ctx, storage.KeyClientID)
	if err != nil {
		return "", "", fmt.Errorf("retrieve client id: %w", err)
	}
	if strings.TrimSpace(clientID) == "" {
		return "", "", ErrMissingClientID
	}
	clientSecret, err := m.store.Get(ctx, storage.KeyClientSecret)
	if err != nil {
		return "", "", fmt.Errorf("retrieve client secret: %w", err)
	}
	return clientID, strings.TrimSpace(clientSecret), nil
}

// fetchAndStoreTokens 请求令牌端点，四个字段齐全时原子写入存储
func (m *Manager) fetchAndStoreTokens(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty response body")
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	switch {
	case token.AccessToken == "":
		return nil, errors.New("access token is missing from response")
	case token.RefreshToken == "":
		return nil, errors.New("refresh token is missing from response")
	case token.TokenType == "":
		return nil, errors.New("token type is missing from response")
	case token.ExpiresIn < 1:
		return nil, errors.New("expires_in is missing from response")
	}
	token.CreatedAt = m.now()

	if err := m.store.Put(ctx, map[string]string{
		storage.KeyAccessToken:  token.AccessToken,
		storage.KeyRefreshToken: token.RefreshToken,
	}); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}

	m.logger.Debug("Access and refresh tokens stored", zap.Int("expires_in", token.ExpiresIn))
	return &token, nil
}

// generateState 生成随机 UUID 的 URL 安全 base64 编码（无填充）
func generateState() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(id.Bytes()), nil
}
