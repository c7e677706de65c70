package jwt

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrMissingSubject   = errors.New("token has no uid")
)

// Claims 令牌载荷, 字段名与前端约定保持一致
type Claims struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Identity 验证通过后的调用方身份
type Identity struct {
	UserID      string
	DisplayName string
	Email       string
	Username    string
}

// Subject 签发令牌所需的用户信息
type Subject struct {
	UserID      string
	Email       string
	DisplayName string
	Username    string
}

type TokenManager struct {
	secret    []byte
	expireDur time.Duration
	now       func() time.Time
}

func NewTokenManager(secret string, expireHours int) *TokenManager {
	return &TokenManager{
		secret:    []byte(secret),
		expireDur: time.Duration(expireHours) * time.Hour,
		now:       time.Now,
	}
}

// GenerateToken 使用 HS256 签发令牌
func (tm *TokenManager) GenerateToken(sub Subject) (string, error) {
	now := tm.now()
	claims := Claims{
		UID:         sub.UserID,
		Email:       sub.Email,
		DisplayName: sub.DisplayName,
		Username:    sub.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expireDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

func (tm *TokenManager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify 校验令牌并返回身份, displayName 缺省时回退为 email
func (tm *TokenManager) Verify(tokenString string) (*Identity, error) {
	claims, err := tm.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	uid := strings.TrimSpace(claims.UID)
	if uid == "" {
		return nil, ErrMissingSubject
	}
	name := claims.DisplayName
	if name == "" {
		name = claims.Email
	}
	return &Identity{
		UserID:      uid,
		DisplayName: name,
		Email:       claims.Email,
		Username:    claims.Username,
	}, nil
}

// ExtractBearer 从 Authorization 头中取出令牌, 格式不对返回空串
func ExtractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
