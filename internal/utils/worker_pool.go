package utils

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// ErrPoolStopped 协程池已停止, 不再接收任务
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool 通用协程池, HTTP 处理链在其中执行以限制并发
type WorkerPool struct {
	jobs      chan func()
	workerNum int
	wg        sync.WaitGroup
	quit      chan struct{}
	stopOnce  sync.Once
	log       *logger.Logger

	// 保护 closed 与向 jobs 发送, Stop 持写锁后才关闭 jobs
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool 创建协程池, 需调用 Start 启动
func NewWorkerPool(workerNum, queueSize int, log *logger.Logger) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &WorkerPool{
		jobs:      make(chan func(), queueSize),
		workerNum: workerNum,
		quit:      make(chan struct{}),
		log:       log,
	}
}

func (p *WorkerPool) Start() {
	for i := range p.workerNum {
		p.wg.Add(1)
		go p.work(i)
	}
	p.log.Info("worker pool started", zap.Int("workers", p.workerNum), zap.Int("queue", cap(p.jobs)))
}

// work 运行到 jobs 被关闭且排空为止
func (p *WorkerPool) work(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

// run 单个任务 panic 不影响 worker
func (p *WorkerPool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker panic", zap.Int("worker", id), zap.Any("panic", r))
		}
	}()
	job()
}

// Submit 提交任务, 队列满时阻塞直到有空位或 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Stop 拒绝新任务, 并等待已排队的任务全部执行完
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		// 先唤醒阻塞在满队列上的 Submit, 再等它们释放读锁
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.jobs)
	})
	p.wg.Wait()

	// 未 Start 时由调用方执行剩余任务
	for job := range p.jobs {
		p.run(-1, job)
	}
}
