package ratelimit

import (
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// localEntry 固定窗口计数器
type localEntry struct {
	count   int
	resetAt time.Time
}

// LocalStore 进程内回退存储
//
// 仅在共享存储检查出错时使用的降级路径。固定窗口在窗口边界
// 处允许突发，弱于滑动窗口，作为降级模式可以接受。每个进程
// 各自计数，限流效果是 per-process 而非 per-cluster 的。
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]*localEntry

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	logger        *log.Helper
}

// NewLocalStore 创建本地回退存储
func NewLocalStore(sweepInterval time.Duration, logger log.Logger) *LocalStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	return &LocalStore{
		entries:       make(map[string]*localEntry),
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
		logger:        log.NewHelper(log.With(logger, "module", "ratelimit-local")),
	}
}

// Check 固定窗口检查
func (s *LocalStore) Check(key string, maxRequests int, window time.Duration, now time.Time) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || now.After(entry.resetAt) {
		s.entries[key] = &localEntry{count: 1, resetAt: now.Add(window)}
		return Result{Allowed: true}
	}

	if entry.count >= maxRequests {
		retryAfterMs := entry.resetAt.Sub(now).Milliseconds()
		if retryAfterMs < 0 {
			retryAfterMs = 0
		}
		return Result{Allowed: false, RetryAfterMs: retryAfterMs}
	}

	entry.count++
	return Result{Allowed: true}
}

// Start 启动后台清理任务
func (s *LocalStore) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop 停止后台清理任务
func (s *LocalStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// sweepLoop 周期性移除过期的本地窗口
func (s *LocalStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// sweep 移除已过期的条目
func (s *LocalStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.resetAt) {
			delete(s.entries, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debugf("swept %d expired rate limit windows", removed)
	}
}

// size 当前条目数（测试用）
func (s *LocalStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
