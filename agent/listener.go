package agent

import "sync"

// listenerRegistry 保存备份集变更的回调, 替代宿主侧的全局监听表
type listenerRegistry struct {
	mu  sync.Mutex
	seq int64
	fns map[int64]func()
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{fns: make(map[int64]func())}
}

// register adds fn and returns its deregister func.
func (r *listenerRegistry) register(fn func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := r.seq
	r.fns[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.fns, id)
	}
}

func (r *listenerRegistry) notify() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.fns))
	for _, fn := range r.fns {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
