// Package circuitbreaker 连续失败熔断, 超时后半开探测
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen 熔断中
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"` // 连续失败次数
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold"` // 半开恢复所需成功次数
	OpenTimeout      time.Duration `yaml:"open_timeout" json:"open_timeout"`
	MaxTrials        int           `yaml:"max_trials" json:"max_trials"` // 半开状态并发探测数

	// OnStateChange 状态变化回调, 在锁外调用
	OnStateChange func(name string, from, to State) `yaml:"-" json:"-"`
	// Now 时钟, 测试可替换
	Now func() time.Time `yaml:"-" json:"-"`
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.MaxTrials <= 0 {
		c.MaxTrials = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Breaker 熔断器
type Breaker struct {
	name string
	cfg  Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	trials    int
	openedAt  time.Time
}

// New 创建熔断器
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults()}
}

// Name 名称
func (b *Breaker) Name() string { return b.name }

// State 当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// refresh 打开超时后转为半开, 调用方持锁
func (b *Breaker) refresh() (from, to State, changed bool) {
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		return b.transition(StateHalfOpen)
	}
	return b.state, b.state, false
}

func (b *Breaker) transition(to State) (State, State, bool) {
	from := b.state
	if from == to {
		return from, to, false
	}
	b.state = to
	b.failures, b.successes, b.trials = 0, 0, 0
	if to == StateOpen {
		b.openedAt = b.cfg.Now()
	}
	return from, to, true
}

func (b *Breaker) notify(from, to State, changed bool) {
	if changed && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Allow 是否放行
func (b *Breaker) Allow() error {
	b.mu.Lock()
	from, to, changed := b.refresh()
	var err error
	switch b.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.trials >= b.cfg.MaxTrials {
			err = ErrCircuitOpen
		} else {
			b.trials++
		}
	}
	b.mu.Unlock()
	b.notify(from, to, changed)
	return err
}

// Record 记录一次调用结果
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	var from, to State
	var changed bool
	switch b.state {
	case StateClosed:
		if err == nil {
			b.failures = 0
		} else if b.failures++; b.failures >= b.cfg.FailureThreshold {
			from, to, changed = b.transition(StateOpen)
		}
	case StateHalfOpen:
		if err != nil {
			from, to, changed = b.transition(StateOpen)
		} else if b.successes++; b.successes >= b.cfg.SuccessThreshold {
			from, to, changed = b.transition(StateClosed)
		} else if b.trials > 0 {
			b.trials--
		}
	}
	b.mu.Unlock()
	b.notify(from, to, changed)
}

// Execute 执行并记录结果
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// Reset 强制关闭
func (b *Breaker) Reset() {
	b.mu.Lock()
	from, to, changed := b.transition(StateClosed)
	b.mu.Unlock()
	b.notify(from, to, changed)
}

// Registry 按名称复用熔断器
type Registry struct {
	cfg      Config
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry 创建注册表
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get 获取或创建
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.cfg)
	r.breakers[name] = b
	return b
}

// States 所有熔断器状态快照
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make(map[string]State, len(list))
	for _, b := range list {
		out[b.name] = b.State()
	}
	return out
}
