package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/auth"
	"github.com/langchou/teslactl/pkg/ws"
)

// Login 开始授权流程，返回需要在浏览器中打开的地址
func (s *CommandService) Login(ctx context.Context) (string, error) {
	s.setStatus("Authentication process started...")

	authURL, err := s.auth.InitiateAuthFlow(ctx)
	if err != nil {
		s.setStatus("Authentication failed: " + err.Error())
		return "", err
	}
	return authURL, nil
}

// Callback 处理授权回调，成功后同步车辆列表
func (s *CommandService) Callback(ctx context.Context, callbackURI string) error {
	if err := s.auth.ExchangeCodeForTokens(ctx, callbackURI); err != nil {
		s.setStatus("Authentication failed: " + err.Error())
		s.broadcast(ws.MsgTypeError, ErrorNotice{Source: "auth", Message: err.Error()})
		return err
	}

	s.mu.Lock()
	s.reauth = false
	s.mu.Unlock()
	s.setStatus("Authentication successful")

	if _, err := s.ListVehicles(ctx); err != nil {
		s.logger.Warn("Failed to sync vehicles after login", zap.Error(err))
	}
	return nil
}

// Refresh 强制刷新令牌
func (s *CommandService) Refresh(ctx context.Context) (auth.TokenInfo, error) {
	if err := s.auth.RefreshAccessToken(ctx); err != nil {
		return auth.TokenInfo{}, err
	}
	return s.auth.TokenLife(ctx)
}

// TokenStatus 当前令牌状态
func (s *CommandService) TokenStatus(ctx context.Context) (auth.TokenInfo, error) {
	return s.auth.TokenLife(ctx)
}

// Logout 清除令牌
func (s *CommandService) Logout(ctx context.Context) error {
	if err := s.auth.Logout(ctx); err != nil {
		return err
	}
	s.setStatus(StatusReady)
	return nil
}

// EnsureToken 需要时刷新令牌，返回刷新后的状态
func (s *CommandService) EnsureToken(ctx context.Context) (auth.TokenInfo, error) {
	if _, err := s.auth.AccessToken(ctx); err != nil {
		return auth.TokenInfo{}, err
	}
	return s.auth.TokenLife(ctx)
}
