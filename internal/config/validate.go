package config

import (
	"regexp"
	"strings"
)

// ValidationState 设置字段校验结果
type ValidationState int

const (
	Empty ValidationState = iota
	Invalid
	Incomplete // 输入合法但尚未填写完整
	Valid
)

func (s ValidationState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Invalid:
		return "invalid"
	case Incomplete:
		return "incomplete"
	case Valid:
		return "valid"
	}
	return "unknown"
}

const (
	vinChars         = "ABCDEFGHJKLMNPRSTUVWXYZ0123456789"
	vinTransliterate = "0123456789.ABCDEFGH..JKLMN.P.R..STUVWXYZ"
	vinWeights       = "8765432X098765432"
	vinCheckDigits   = "0123456789X"

	clientSecretPrefix = "ta-secret."
	clientSecretLen    = 26
)

var (
	baseURLPattern = regexp.MustCompile(`^https://([a-zA-Z0-9.-]+)(/.*)?$`)
	hexPattern     = regexp.MustCompile(`^[0-9a-fA-F]*$`)
)

// ValidateVIN 校验 VIN：字符集、长度与第 9 位校验码
func ValidateVIN(vin string) ValidationState {
	if vin == "" {
		return Empty
	}
	for _, r := range vin {
		if !strings.ContainsRune(vinChars, r) {
			return Invalid
		}
	}
	if len(vin) < 17 {
		return Incomplete
	}
	if len(vin) > 17 {
		return Invalid
	}

	sum := 0
	for i := 0; i < 17; i++ {
		value := strings.IndexByte(vinTransliterate, vin[i]) % 10
		weight := 10
		if vinWeights[i] != 'X' {
			weight = int(vinWeights[i] - '0')
		}
		sum += value * weight
	}

	if vinCheckDigits[sum%11] != vin[8] {
		return Invalid
	}
	return Valid
}

// ValidateBaseURL 只接受 https 地址
func ValidateBaseURL(u string) ValidationState {
	if u == "" {
		return Empty
	}
	if !strings.HasPrefix(u, "https://") {
		return Invalid
	}
	if baseURLPattern.MatchString(u) {
		return Valid
	}
	return Invalid
}

// ValidateClientID 校验 UUID 格式的 client id，允许部分输入
func ValidateClientID(id string) ValidationState {
	if id == "" {
		return Empty
	}

	tokens := strings.Split(id, "-")
	if len(tokens) > 5 {
		return Invalid
	}

	expected := []int{8, 4, 4, 4, 12}
	prevFull := true
	for i, tok := range tokens {
		if !prevFull {
			return Invalid
		}
		if len(tok) > expected[i] || !hexPattern.MatchString(tok) {
			return Invalid
		}
		prevFull = len(tok) == expected[i]
	}

	if len(id) == 36 {
		return Valid
	}
	return Incomplete
}

// ValidateClientSecret 校验 "ta-secret." 开头的 26 位 client secret
func ValidateClientSecret(secret string) ValidationState {
	if secret == "" {
		return Empty
	}
	if len(secret) <= len(clientSecretPrefix) && strings.HasPrefix(clientSecretPrefix, secret) {
		return Incomplete
	}
	if len(secret) < clientSecretLen {
		return Incomplete
	}
	if len(secret) == clientSecretLen {
		return Valid
	}
	return Invalid
}

// Settings 用户可编辑的设置
type Settings struct {
	VIN          string `json:"vin"`
	BaseURL      string `json:"base_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Validation 各字段的校验结果
func (s Settings) Validation() map[string]ValidationState {
	return map[string]ValidationState{
		"vin":           ValidateVIN(s.VIN),
		"base_url":      ValidateBaseURL(s.BaseURL),
		"client_id":     ValidateClientID(s.ClientID),
		"client_secret": ValidateClientSecret(s.ClientSecret),
	}
}

// Valid 所有字段都校验通过
func (s Settings) Valid() bool {
	for _, st := range s.Validation() {
		if st != Valid {
			return false
		}
	}
	return true
}
