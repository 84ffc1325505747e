package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"trading-relay/src/interfaces"
	"trading-relay/src/logger"
	"trading-relay/src/models"
)

const relayQueue = 256

// Manager runs the analytics sources and relays what they emit to the
// broadcast hub unchanged.
type Manager struct {
	Sources map[string]interfaces.IEventSource
	Logger  *logger.Logger
	pub     interfaces.IEventPublisher

	mu         sync.RWMutex
	out        chan models.MEvent
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         *sync.WaitGroup

	relayed atomic.Int64
}

// -----------------------------------------------------------------------------

func NewManager(sources []interfaces.IEventSource, pub interfaces.IEventPublisher, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	m := &Manager{
		Sources: make(map[string]interfaces.IEventSource),
		Logger:  log,
		pub:     pub,
	}
	for _, s := range sources {
		m.Sources[s.Name()] = s
	}
	return m
}

// -----------------------------------------------------------------------------

// AddSource registers source and starts it if the manager is running.
func (m *Manager) AddSource(source interfaces.IEventSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := source.Name()
	if _, exists := m.Sources[name]; exists {
		return fmt.Errorf("source %s already exists", name)
	}
	m.Sources[name] = source
	m.Logger.Info("Added source: %s", name)

	if m.ctx != nil {
		return m.startLocked(source)
	}
	return nil
}

// RemoveSource stops and forgets a source.
func (m *Manager) RemoveSource(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, exists := m.Sources[name]
	if !exists {
		return fmt.Errorf("source %s not found", name)
	}
	if err := source.Stop(); err != nil {
		m.Logger.Error("Error stopping source %s: %v", name, err)
	}
	delete(m.Sources, name)
	m.Logger.Info("Removed source: %s", name)
	return nil
}

// SourceNames lists the registered sources, sorted.
func (m *Manager) SourceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.Sources))
	for name := range m.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relayed reports how many events reached the publisher.
func (m *Manager) Relayed() int64 {
	return m.relayed.Load()
}

// -----------------------------------------------------------------------------

// Start launches every source and the relay loop. wg is released once the
// relay loop and all sources have stopped.
func (m *Manager) Start(parentCtx context.Context, wg *sync.WaitGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return fmt.Errorf("analytics manager is already running")
	}
	ctx, cancel := context.WithCancel(parentCtx)
	m.ctx = ctx
	m.cancelFunc = cancel
	m.wg = wg
	m.out = make(chan models.MEvent, relayQueue)

	wg.Add(1)
	go m.relay(ctx, m.out, wg)

	for _, src := range m.Sources {
		if err := m.startLocked(src); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) startLocked(src interfaces.IEventSource) error {
	m.wg.Add(1)
	if err := src.Start(m.ctx, m.out, m.wg); err != nil {
		m.wg.Done()
		m.Logger.Error("Failed to start source %s: %v", src.Name(), err)
		return err
	}
	m.Logger.Info("Started source: %s", src.Name())
	return nil
}

func (m *Manager) relay(ctx context.Context, in <-chan models.MEvent, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-in:
			if m.pub != nil {
				m.pub.Publish(evt)
			}
			m.relayed.Add(1)
		}
	}
}

// Stop cancels the sources and the relay loop.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil
	}
	m.Logger.Info("Stopping analytics manager...")
	m.cancelFunc()
	for name, src := range m.Sources {
		if err := src.Stop(); err != nil {
			m.Logger.Warning("Error stopping source %s: %v", name, err)
		}
	}
	m.cancelFunc = nil
	m.ctx = nil
	return nil
}
