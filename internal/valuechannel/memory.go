package valuechannel

import (
	"context"
	"sync"
)

// Memory is an in-process Channel. Reads of an unset address wait until a
// writer sets it.
type Memory struct {
	mu      sync.Mutex
	values  map[Address][]byte
	waiters map[Address][]chan struct{}
}

// NewMemory creates an empty channel.
func NewMemory() *Memory {
	return &Memory{
		values:  make(map[Address][]byte),
		waiters: make(map[Address][]chan struct{}),
	}
}

// ReadFloat implements Channel.
func (m *Memory) ReadFloat(ctx context.Context, addr Address) (float64, error) {
	data, err := m.read(ctx, addr)
	if err != nil {
		return 0, err
	}
	return decodeFloat(addr, data)
}

// WriteFloat implements Channel.
func (m *Memory) WriteFloat(_ context.Context, addr Address, v float64) error {
	return m.write(addr, encodeFloat(v))
}

// ReadBlob implements Channel.
func (m *Memory) ReadBlob(ctx context.Context, addr Address) ([]byte, error) {
	return m.read(ctx, addr)
}

// WriteBlob implements Channel.
func (m *Memory) WriteBlob(_ context.Context, addr Address, data []byte) error {
	return m.write(addr, data)
}

func (m *Memory) read(ctx context.Context, addr Address) ([]byte, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	for {
		m.mu.Lock()
		if v, ok := m.values[addr]; ok {
			out := append([]byte(nil), v...)
			m.mu.Unlock()
			return out, nil
		}
		wake := make(chan struct{})
		m.waiters[addr] = append(m.waiters[addr], wake)
		m.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, timeoutError(ctx, addr)
		}
	}
}

func (m *Memory) write(addr Address, data []byte) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[addr] = append([]byte(nil), data...)
	for _, w := range m.waiters[addr] {
		close(w)
	}
	delete(m.waiters, addr)
	return nil
}
