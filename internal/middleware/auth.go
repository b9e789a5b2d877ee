package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"GuardWatch/pkg/errors"
	"GuardWatch/pkg/response"
	"GuardWatch/pkg/token"
)

// IdentityKey 请求上下文中存放 admin id 的键
const IdentityKey = token.IdentityKey

var operatorAuth *jwt.HertzJWTMiddleware

// initAuthMiddleware 复用 token 包的签名参数构建只校验、不签发的运营鉴权中间件
func initAuthMiddleware() error {
	gen := token.GetGenerator()
	if gen == nil {
		return errors.ErrTokenGeneratorNotInitialized
	}

	mw := &jwt.HertzJWTMiddleware{
		Realm:           "guardwatch-operator",
		Key:             gen.Key,
		Timeout:         gen.Timeout,
		MaxRefresh:      gen.MaxRefresh,
		IdentityKey:     gen.IdentityKey,
		TimeFunc:        gen.TimeFunc,
		IdentityHandler: adminIdentity,
		Authorizator:    isOperator,
		Unauthorized:    rejectOperator,
		TokenLookup:     "header: Authorization, query: token",
		TokenHeadName:   "Bearer",
	}
	if err := mw.MiddlewareInit(); err != nil {
		return err
	}

	operatorAuth = mw
	return nil
}

// adminIdentity 把 uid 声明解析为 int64，解析失败返回 nil 交给 Authorizator 拒绝
func adminIdentity(ctx context.Context, c *app.RequestContext) interface{} {
	adminID, err := token.AdminIDFromClaim(jwt.ExtractClaims(ctx, c)[IdentityKey])
	if err != nil {
		return nil
	}
	return adminID
}

func isOperator(data interface{}, _ context.Context, _ *app.RequestContext) bool {
	id, ok := data.(int64)
	return ok && id > 0
}

func rejectOperator(ctx context.Context, c *app.RequestContext, _ int, message string) {
	response.ErrorWithDetails(ctx, c, errors.Unauthorized, map[string]interface{}{"reason": message})
}

// AuthMiddleware 运营接口鉴权，需先调用 Init
func AuthMiddleware() app.HandlerFunc {
	if operatorAuth == nil {
		panic("operator auth not initialized, call middleware.Init first")
	}
	return operatorAuth.MiddlewareFunc()
}

// GetAdminID 从请求上下文中获取运营人员 ID
func GetAdminID(_ context.Context, c *app.RequestContext) (int64, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return 0, false
	}

	id, ok := v.(int64)
	return id, ok && id > 0
}
