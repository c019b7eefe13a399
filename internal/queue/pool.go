package queue

import "sync"

// Pool runs tasks on at most size goroutines. Push never blocks.
type Pool[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	work    func(T)
	pending []T
	running int
	killed  bool
}

func NewPool[T any](size int, work func(T)) *Pool[T] {
	p := &Pool[T]{size: max(size, 1), work: work}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Push queues task and reports whether it was accepted. A killed pool
// rejects everything.
func (p *Pool[T]) Push(task T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return false
	}
	p.pending = append(p.pending, task)
	if p.running < p.size {
		p.running++
		go p.worker()
	}
	return true
}

func (p *Pool[T]) worker() {
	for {
		p.mu.Lock()
		if p.killed || len(p.pending) == 0 {
			p.running--
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}
		task := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()
		p.work(task)
	}
}

// Kill stops accepting tasks and drops the ones not yet started. Tasks
// already running are left to finish.
func (p *Pool[T]) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	p.pending = nil
	p.cond.Broadcast()
}

func (p *Pool[T]) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Wait blocks until no task is queued or running.
func (p *Pool[T]) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.running > 0 {
		p.cond.Wait()
	}
}
