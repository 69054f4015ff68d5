package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Store 短TTL读穿缓存：
//   - 同一key的并发未命中请求合并为一次上游调用（singleflight）
//   - 上游失败时回退最近一次成功值并标记stale，调用方据此降级展示
//
// 实例在启动时构建并注入使用方，不做包级全局状态。
type Store[V any] struct {
	fresh  *expirable.LRU[string, V]
	group  singleflight.Group
	logger *logrus.Logger

	mu       sync.RWMutex
	lastGood map[string]V // 不过期的最后成功值，仅用于源不可达时兜底
}

func NewStore[V any](size int, ttl time.Duration, logger *logrus.Logger) *Store[V] {
	if size <= 0 {
		size = 16
	}
	return &Store[V]{
		fresh:    expirable.NewLRU[string, V](size, nil, ttl),
		logger:   logger,
		lastGood: make(map[string]V),
	}
}

// FetchFunc 上游拉取函数
type FetchFunc[V any] func(ctx context.Context) (V, error)

type flightResult[V any] struct {
	value V
	stale bool
}

// GetOrFetch TTL内直接命中；未命中则合并拉取；拉取失败回退stale值。
// 返回的bool为true表示值来自过期缓存（上游本次不可达）。
func (s *Store[V]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[V]) (V, bool, error) {
	if v, ok := s.fresh.Get(key); ok {
		return v, false, nil
	}
	return s.refresh(ctx, key, fetch, false)
}

// Refresh 跳过TTL强制拉取（调度器用），与GetOrFetch共享在途请求
func (s *Store[V]) Refresh(ctx context.Context, key string, fetch FetchFunc[V]) (V, bool, error) {
	return s.refresh(ctx, key, fetch, true)
}

func (s *Store[V]) refresh(ctx context.Context, key string, fetch FetchFunc[V], force bool) (V, bool, error) {
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// 合并窗口内可能已有别的调用完成了拉取
		if !force {
			if v, ok := s.fresh.Get(key); ok {
				return flightResult[V]{value: v}, nil
			}
		}

		value, err := fetch(ctx)
		if err != nil {
			s.mu.RLock()
			last, ok := s.lastGood[key]
			s.mu.RUnlock()
			if ok {
				s.logger.WithError(err).WithField("key", key).Warn("上游拉取失败，回退过期缓存")
				return flightResult[V]{value: last, stale: true}, nil
			}
			return nil, err
		}

		s.fresh.Add(key, value)
		s.mu.Lock()
		s.lastGood[key] = value
		s.mu.Unlock()
		return flightResult[V]{value: value}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	r := v.(flightResult[V])
	return r.value, r.stale, nil
}

// Invalidate 使fresh层失效；lastGood保留继续承担兜底
func (s *Store[V]) Invalidate(key string) {
	s.fresh.Remove(key)
}
