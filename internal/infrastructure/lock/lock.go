package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired 锁被其他持有者占用
var ErrNotAcquired = errors.New("未能获取锁")

// Locker 互斥锁抽象
// 单机部署用进程内实现，多实例部署切到 Redis 实现
type Locker interface {
	// TryLock 非阻塞获取锁，成功返回释放函数
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
