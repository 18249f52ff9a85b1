package engine

import "sync"

// runLocker 按运行ID加锁，同一运行的变更串行执行
type runLocker struct {
	mu    sync.Mutex
	locks map[string]*runLock
}

type runLock struct {
	mu   sync.Mutex
	refs int
}

func newRunLocker() *runLocker {
	return &runLocker{locks: make(map[string]*runLock)}
}

// Lock 获取运行锁，返回解锁函数
func (l *runLocker) Lock(runID string) func() {
	l.mu.Lock()
	lk, ok := l.locks[runID]
	if !ok {
		lk = &runLock{}
		l.locks[runID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, runID)
		}
		l.mu.Unlock()
	}
}

// size 当前持有或等待中的锁数量
func (l *runLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
