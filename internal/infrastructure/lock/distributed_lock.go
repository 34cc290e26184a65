package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 账户级分布式锁
// ============================================================================
//
// 数据库事务内已经对账户行 SELECT ... FOR UPDATE，这把锁是事务之外的第一道闸：
// 同一账户的并发请求在进入数据库之前就排队，避免大量事务堆在行锁上等待。
//
// 加锁：SET key value NX PX ttl
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - PX: 设置过期时间（持有者崩溃时自动释放）
//   - value: 持有者标识（释放时校验，防止误删别人的锁）
//
// 释放锁：Lua 脚本保证"检查 + 删除"的原子性
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试），重试耗尽返回 ErrLockFailed
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// ============================================================================
// 按账户加锁
// ============================================================================

// AccountLocker 为每个账户提供一把独立的锁
// 不同账户之间互不阻塞；client 为 nil 时退化为只依赖数据库行锁
type AccountLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewAccountLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *AccountLocker {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &AccountLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func AccountLockKey(userID int64) string {
	return fmt.Sprintf("wallet:lock:user:%d", userID)
}

// Acquire 获取账户锁，返回释放函数
func (l *AccountLocker) Acquire(ctx context.Context, userID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}

	dl := NewDistributedLock(l.client, AccountLockKey(userID), uuid.NewString(), l.ttl)
	if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
		return nil, err
	}

	return func() {
		// 请求 ctx 可能已取消，释放锁使用独立的短超时
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = dl.Unlock(releaseCtx)
	}, nil
}
