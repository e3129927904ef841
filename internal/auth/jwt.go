package auth

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshThreshold 剩余寿命低于该百分比时刷新令牌
const RefreshThreshold = 20

var segmentParser = jwt.NewParser()

// LifeRemaining 计算 access token 剩余寿命百分比
// 只解码 JWT payload，不校验签名；格式错误时返回 error，调用方应视为需要刷新
func LifeRemaining(token string, now time.Time) (int, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, time.Time{}, fmt.Errorf("invalid JWT format: expected 3 parts, got %d", len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("decode JWT payload: %w", err)
	}

	var claims jwt.RegisteredClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return 0, time.Time{}, fmt.Errorf("parse JWT payload: %w", err)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return 0, time.Time{}, fmt.Errorf("JWT payload missing iat or exp")
	}

	iat := claims.IssuedAt.Unix()
	exp := claims.ExpiresAt.Unix()
	if exp <= iat {
		return 0, claims.ExpiresAt.Time, nil
	}

	pct := math.Floor(float64(exp-now.Unix()) / float64(exp-iat) * 100)
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return int(pct), claims.ExpiresAt.Time, nil
}
