package rowsync

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockShards = 32

// groupLocks выдает мьютекс на группу клиентов.
// Таблица мьютексов шардирована по xxhash, мьютексы разных групп независимы.
type groupLocks struct {
	shards [lockShards]lockShard
}

type lockShard struct {
	locks map[string]*groupLock
	mu    sync.Mutex
}

// groupLock семафор на одну группу, refs считает ожидающих и владельца
type groupLock struct {
	ch   chan struct{}
	refs int
}

func newGroupLocks() *groupLocks {
	l := &groupLocks{}
	for i := range l.shards {
		l.shards[i].locks = make(map[string]*groupLock)
	}
	return l
}

func (l *groupLocks) shard(id string) *lockShard {
	return &l.shards[xxhash.Sum64String(id)%lockShards]
}

// lock blocks until the group is free or ctx is done.
func (l *groupLocks) lock(ctx context.Context, id string) (func(), error) {
	sh := l.shard(id)

	sh.mu.Lock()
	gl, ok := sh.locks[id]
	if !ok {
		gl = &groupLock{ch: make(chan struct{}, 1)}
		sh.locks[id] = gl
	}
	gl.refs++
	sh.mu.Unlock()

	select {
	case gl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(sh, id, gl)
		return nil, ctx.Err()
	}

	return func() {
		<-gl.ch
		l.release(sh, id, gl)
	}, nil
}

func (l *groupLocks) release(sh *lockShard, id string, gl *groupLock) {
	sh.mu.Lock()
	gl.refs--
	if gl.refs == 0 {
		delete(sh.locks, id)
	}
	sh.mu.Unlock()
}

// size число групп с активными или ожидающими блокировками
func (l *groupLocks) size() int {
	n := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		n += len(sh.locks)
		sh.mu.Unlock()
	}
	return n
}
