package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is what is remembered about one installation between restarts.
type Record struct {
	// Sensors is the number of temperature sensors found by the last discovery.
	Sensors *int `json:"sensors,omitempty"`
}

// State maps installation ids to their record.
type State map[string]Record

// Store loads and saves the whole State.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

type file struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a Store keeping the state as JSON in path. A missing file
// loads as an empty State.
func NewFile(path string) *file {
	return &file{path: path}
}

func (f *file) Load(_ context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return nil, err
	}
	state := State{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	return state, nil
}

// Save writes to a temporary file first so a crash never leaves a partial file.
func (f *file) Save(_ context.Context, state State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Memory is a Store held in memory, used when nothing should touch the disk.
type Memory struct {
	mu    sync.Mutex
	state State
	Saves int
}

func (m *Memory) Load(_ context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.state), nil
}

func (m *Memory) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = clone(state)
	m.Saves++
	return nil
}

func clone(s State) State {
	out := make(State, len(s))
	for k, v := range s {
		if v.Sensors != nil {
			n := *v.Sensors
			v.Sensors = &n
		}
		out[k] = v
	}
	return out
}
