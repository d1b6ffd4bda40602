package distribution

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
)

// memTarget is an in-memory Target used by the runner tests.
type memTarget struct {
	name       string
	connectErr error
	chownErr   error
	putErr     map[string]error

	mu     sync.Mutex
	files  map[string][]byte
	puts   []string
	closed bool
}

func newMemTarget(name string) *memTarget {
	return &memTarget{name: name, files: map[string][]byte{}, putErr: map[string]error{}}
}

func (m *memTarget) Name() string { return m.name }
func (m *memTarget) Kind() string { return "mem" }

func (m *memTarget) Connect(ctx context.Context) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	return ctx.Err()
}

func (m *memTarget) Close() error {
	m.closed = true
	return nil
}

func (m *memTarget) EnsureDir(context.Context) error { return nil }

func (m *memTarget) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memTarget) ReadFile(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[name], nil
}

func (m *memTarget) Put(_ context.Context, name string, r io.Reader, _ int64) error {
	if err := m.putErr[name]; err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	m.puts = append(m.puts, name)
	return nil
}

func (m *memTarget) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return errors.New("no such file")
	}
	delete(m.files, name)
	return nil
}

func (m *memTarget) FixOwnership(context.Context) error { return m.chownErr }
