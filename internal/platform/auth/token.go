package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueToken は開発用。ログイン機能はこのサービスの外にあるので、
// outboxctl から同じクレーム形式のトークンを作れるようにしておく。
func IssueToken(secret []byte, actorID, role string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  actorID,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
