package token

import (
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"GuardWatch/config"
	"GuardWatch/pkg/errors"
)

const (
	// IdentityKey token 中的 admin id
	IdentityKey = "uid"
)

var (
	// 这个实例会被 middleware 和 token 包共同使用
	sharedGenerator *jwt.HertzJWTMiddleware
)

func Init() error {
	return InitWithSecret([]byte(config.Cfg.JWTSecret), time.Duration(config.Cfg.JWTExpireMinutes)*time.Minute)
}

// InitWithSecret 测试或运维工具直接指定密钥
func InitWithSecret(secret []byte, ttl time.Duration) error {
	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Key:         secret,
		Timeout:     ttl,
		MaxRefresh:  ttl,
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,
	})

	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// GenerateAccessToken 为运营人员签发 access token
func GenerateAccessToken(adminID int64) (accessToken string, expiresIn int, err error) {
	if sharedGenerator == nil {
		return "", 0, errors.ErrTokenGeneratorNotInitialized
	}

	now := sharedGenerator.TimeFunc()
	expiresAt := now.Add(sharedGenerator.Timeout)

	claims := jwtv5.MapClaims{
		IdentityKey: strconv.FormatInt(adminID, 10),
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	}

	accessToken, err = jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(sharedGenerator.Key)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	return accessToken, int(sharedGenerator.Timeout.Seconds()), nil
}

// ParseAdminID 校验 access token 并返回 admin id
func ParseAdminID(tokenString string) (int64, error) {
	if sharedGenerator == nil {
		return 0, errors.ErrTokenGeneratorNotInitialized
	}

	token, err := jwtv5.ParseWithClaims(tokenString, jwtv5.MapClaims{}, func(token *jwtv5.Token) (interface{}, error) {
		if token.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return sharedGenerator.Key, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return 0, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwtv5.MapClaims)
	if !ok {
		return 0, errors.ErrInvalidTokenClaims
	}

	return AdminIDFromClaim(claims[IdentityKey])
}

// AdminIDFromClaim 兼容字符串和数字两种 uid 写法
func AdminIDFromClaim(v interface{}) (int64, error) {
	switch uid := v.(type) {
	case string:
		id, err := strconv.ParseInt(uid, 10, 64)
		if err != nil || id <= 0 {
			return 0, errors.InvalidAdmin
		}
		return id, nil
	case float64:
		if uid <= 0 {
			return 0, errors.InvalidAdmin
		}
		return int64(uid), nil
	default:
		return 0, errors.ErrInvalidTokenClaims
	}
}
