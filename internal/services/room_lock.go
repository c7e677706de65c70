package services

import "sync"

// roomLocks 按房间串行化 "写入 + 发布事件", 保证同一房间的事件按提交顺序发布
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// lock 获取 key 对应的锁, 返回解锁函数; 无人持有时回收
func (r *roomLocks) lock(key string) func() {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &roomLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

// size 当前持有或等待中的锁数量
func (r *roomLocks) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
