package tesla

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// 错误定义
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrVehicleNotFound    = errors.New("vehicle not found")
	ErrVehicleUnavailable = errors.New("vehicle unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// StatusError 其他非 2xx 响应
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Result 请求结果：Success 携带状态码与响应体，Failure 只携带状态码
type Result struct {
	Code int
	Body []byte
	ok   bool
}

// Success 成功结果
func Success(code int, body []byte) Result {
	return Result{Code: code, Body: body, ok: true}
}

// Failure 失败结果
func Failure(code int) Result {
	return Result{Code: code}
}

// OK 是否成功
func (r Result) OK() bool {
	return r.ok
}

// Err 将失败结果映射为错误，成功时返回 nil
func (r Result) Err() error {
	if r.ok {
		return nil
	}
	switch r.Code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrVehicleNotFound
	case http.StatusRequestTimeout:
		return ErrVehicleUnavailable
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &StatusError{Code: r.Code}
	}
}

func (r Result) String() string {
	if r.ok {
		return fmt.Sprintf("Success(%d)", r.Code)
	}
	return fmt.Sprintf("Failure(%d)", r.Code)
}

// TokenSource 提供 access token，无可用令牌时返回 error
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client Tesla API 客户端
// 负责附加认证头并执行请求，不关心目标是 Fleet API 还是签名代理
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
	userAgent  string
}

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithHTTPClient 指定 HTTP 客户端
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout 设置请求超时
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.httpClient.Timeout = d }
}

// NewClient 创建新的 Tesla API 客户端
func NewClient(tokens TokenSource, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens:    tokens,
		logger:    logger,
		userAgent: "teslactl/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do 执行带认证的请求
// 无可用令牌时直接返回 Failure(401)，不发出请求；网络错误以 error 返回
func (c *Client) Do(ctx context.Context, method, baseURL, path string, body []byte) (Result, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil || token == "" {
		c.logger.Debug("No access token available", zap.String("path", path), zap.Error(err))
		return Failure(http.StatusUnauthorized), nil
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+path, reader)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return Failure(resp.StatusCode), nil
	}

	c.logger.Debug("Request succeeded",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return Success(resp.StatusCode, data), nil
}
