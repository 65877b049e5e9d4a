package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// unlockScript 检查 value 是自己的才删除，避免释放掉别人持有的锁
const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// RedisLocker 基于 Redis SetNX 的互斥锁
//
// 加锁：SET key value NX EX ttl
//   - NX 保证互斥，EX 防止持有者崩溃后死锁
//   - value 为持有者标识，释放时验证
type RedisLocker struct {
	client  *redis.Client
	counter uint64
	mu      sync.Mutex
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	l.counter++
	value := fmt.Sprintf("%d-%d", time.Now().UnixNano(), l.counter)
	l.mu.Unlock()

	ok, err := l.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := l.client.Eval(context.Background(), unlockScript, []string{key}, value).Err(); err != nil {
				logrus.Warnf("释放锁失败 key=%s: %v", key, err)
			}
		})
	}
	return release, nil
}
