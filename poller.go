package remoteconfig

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Poller 按固定间隔触发回调，不含业务逻辑。
type Poller interface {
	// Start 开始轮询，重复调用无效。
	Start(onTick func())
	// Stop 取消后续 tick，不会中断正在执行的 tick。
	Stop()
}

// IntervalPoller 在 Start 时立即触发一次，之后每隔 interval 触发一次。
// 所有 tick 都在同一个 goroutine 中串行执行，不会重叠；
// 执行较慢时错过的 tick 会被丢弃而不是排队。
type IntervalPoller struct {
	interval time.Duration

	running atomic.Bool
	ticks   atomic.Int64

	mu   sync.Mutex
	stop chan struct{}

	// Stop 后立即 Start 时，旧 loop 的 tick 可能仍在执行
	tickMu sync.Mutex
}

// NewIntervalPoller 创建轮询器，interval <= 0 时使用 DefaultPollInterval。
func NewIntervalPoller(interval time.Duration) *IntervalPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &IntervalPoller{interval: interval}
}

// Start 启动后台 goroutine 并立即触发第一次 tick。
func (p *IntervalPoller) Start(onTick func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return
	}
	p.running.Store(true)
	p.stop = make(chan struct{})

	go p.loop(p.stop, onTick)
}

func (p *IntervalPoller) loop(stop <-chan struct{}, onTick func()) {
	// 1. 启动时立即执行一次
	p.tick(onTick)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Stop 与 tick 同时就绪时优先退出
			select {
			case <-stop:
				return
			default:
			}
			p.tick(onTick)
		}
	}
}

func (p *IntervalPoller) tick(onTick func()) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	p.ticks.Inc()
	onTick()
}

// Stop 停止轮询，正在执行的 tick 会继续完成。
func (p *IntervalPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stop)
	p.stop = nil
}

// Running 报告轮询是否在进行。
func (p *IntervalPoller) Running() bool {
	return p.running.Load()
}

// Ticks 返回已触发的 tick 数。
func (p *IntervalPoller) Ticks() int64 {
	return p.ticks.Load()
}

// Interval 返回轮询间隔。
func (p *IntervalPoller) Interval() time.Duration {
	return p.interval
}
