package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// VisitorRateLimiter limita rafagas de generaciones por visitante.
type VisitorRateLimiter interface {
	Allow(key string) bool
}

const redisVisitorAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisVisitorRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

func NewRedisVisitorRateLimiter(client *redis.Client, window time.Duration, max int) VisitorRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisVisitorRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "visitor:rl:",
	}
}

// Allow cuenta la generacion y decide. Ante errores de redis falla abierto:
// preferimos dejar pasar una rafaga a frenar el taller por un redis caido.
func (l *redisVisitorRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	redisKey := l.prefix + normalizedKey
	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisVisitorAllowScript, []string{redisKey}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
