package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxActorIDKey = "actor_id"
	CtxRoleKey    = "role"
)

// Actor は操作主体。ID は JWT の sub、Role は role クレーム（大文字に正規化）
type Actor struct {
	ID   string
	Role string
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func abort(c *gin.Context, status int, code, msg string) {
	var b errorBody
	b.Error.Code = code
	b.Error.Message = msg
	c.AbortWithStatusJSON(status, b)
}

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role を詰める
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing Authorization header")
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid Authorization header")
			return
		}
		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "empty token")
			return
		}

		actor, err := ParseToken(secret, tokenStr)
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
			return
		}

		c.Set(CtxActorIDKey, actor.ID)
		c.Set(CtxRoleKey, actor.Role)
		c.Next()
	}
}

// RequireRole: 例) ADMIN / PRINCIPAL のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[strings.ToUpper(r)] = struct{}{}
	}

	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || actor.Role == "" {
			abort(c, http.StatusForbidden, "FORBIDDEN", "missing role")
			return
		}
		if _, allowed := roleSet[actor.Role]; !allowed {
			abort(c, http.StatusForbidden, "FORBIDDEN", "role not permitted")
			return
		}
		c.Next()
	}
}

// ActorFrom は RequireAuth が詰めた値を取り出す
func ActorFrom(c *gin.Context) (Actor, bool) {
	id := c.GetString(CtxActorIDKey)
	if id == "" {
		return Actor{}, false
	}
	return Actor{ID: id, Role: c.GetString(CtxRoleKey)}, true
}

// ParseToken は HS256 固定で検証する（alg none 攻撃とか回避）
func ParseToken(secret []byte, tokenStr string) (Actor, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, err
	}
	if token == nil || !token.Valid {
		return Actor{}, jwt.ErrTokenSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Actor{}, jwt.ErrTokenInvalidClaims
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Actor{}, jwt.ErrTokenInvalidClaims
	}
	role, _ := claims["role"].(string)
	return Actor{ID: sub, Role: strings.ToUpper(strings.TrimSpace(role))}, nil
}
