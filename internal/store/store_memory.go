package store

import (
	"context"
	"sync"
	"time"
)

// Memory is the single-instance store. Data is lost on restart, which is
// acceptable for login correlation state: the client simply starts over.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]memoryRecord
	done    chan struct{}
	once    sync.Once
}

type memoryRecord struct {
	value   []byte
	expires time.Time
}

// NewMemory constructs an in-memory store whose records expire ttl after
// insertion. A janitor goroutine sweeps expired records so abandoned logins
// do not accumulate; reads also check expiry so correctness never depends on
// sweep timing.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		ttl:     ttl,
		records: make(map[string]memoryRecord),
		done:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *Memory) janitor() {
	interval := m.ttl
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for key, rec := range m.records {
				if now.After(rec.expires) {
					delete(m.records, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the janitor. Safe to call more than once.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *Memory) Add(_ context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = memoryRecord{value: value, expires: time.Now().Add(m.ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || time.Now().After(rec.expires) {
		delete(m.records, key)
		return nil, ErrNotFound
	}
	return rec.value, nil
}

func (m *Memory) Take(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || time.Now().After(rec.expires) {
		delete(m.records, key)
		return nil, ErrNotFound
	}
	delete(m.records, key)
	return rec.value, nil
}
