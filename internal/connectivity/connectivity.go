// Package connectivity определяет, доступна ли центральная система, и оповещает о восстановлении связи.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Static сообщает постоянное состояние связи.
type Static bool

// Online возвращает заданное значение.
func (s Static) Online() bool { return bool(s) }

// Prober проверяет доступность центральной системы.
type Prober interface {
	Ping(ctx context.Context) error
}

// Option настраивает Monitor.
type Option func(*Monitor)

// WithLogger задаёт логгер монитора.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithStateHook задаёт функцию, получающую результат каждой проверки.
func WithStateHook(fn func(online bool)) Option {
	return func(m *Monitor) { m.onState = fn }
}

// Subscriber выполняет работу, отложенную до восстановления связи. Ошибка означает, что работа
// не завершена: подписчик будет вызван снова на одной из следующих успешных проверок.
type Subscriber func(ctx context.Context) error

// RetryDelayer реализуется ошибками, которые сообщают, сколько ждать перед повтором.
type RetryDelayer interface {
	RetryDelay() time.Duration
}

type subscription struct {
	fn      Subscriber
	failed  bool
	retryAt time.Time
}

// Monitor периодически опрашивает центральную систему и вызывает подписчиков
// при переходе из офлайна в онлайн, а также повторно, пока их работа не завершена.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *zap.Logger
	onState  func(bool)

	mu          sync.RWMutex
	online      bool
	subscribers []*subscription

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor создаёт монитор, проверяющий связь каждые interval.
func NewMonitor(p Prober, interval time.Duration, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &Monitor{
		prober:   p,
		interval: interval,
		logger:   zap.NewNop(),
		onState:  func(bool) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online возвращает результат последней проверки.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe регистрирует обработчик восстановления связи.
func (m *Monitor) Subscribe(fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, &subscription{fn: fn})
}

// Start выполняет первую проверку и запускает фоновый опрос. Повторный вызов не имеет эффекта.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop останавливает опрос и дожидается завершения текущей проверки.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	err := m.prober.Ping(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}

	online := err == nil

	m.mu.Lock()
	was := m.online
	m.online = online
	subs := append([]*subscription{}, m.subscribers...)
	m.mu.Unlock()

	m.onState(online)

	switch {
	case online && !was:
		m.logger.Info("back office reachable", zap.Int("subscribers", len(subs)))
		for _, sub := range subs {
			m.run(ctx, sub)
		}
	case online:
		now := time.Now()
		for _, sub := range subs {
			if sub.failed && !now.Before(sub.retryAt) {
				m.run(ctx, sub)
			}
		}
	case was:
		m.logger.Warn("back office unreachable", zap.Error(err))
	}
}

// run меняет состояние подписки только из горутины опроса.
func (m *Monitor) run(ctx context.Context, sub *subscription) {
	err := sub.fn(ctx)
	if err == nil {
		sub.failed = false
		sub.retryAt = time.Time{}
		return
	}

	sub.failed = true
	sub.retryAt = time.Now()
	var d RetryDelayer
	if errors.As(err, &d) {
		sub.retryAt = sub.retryAt.Add(d.RetryDelay())
	}
	m.logger.Warn("subscriber failed, will retry", zap.Error(err), zap.Time("retryAt", sub.retryAt))
}
