package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pilothub/api/internal/kv"
)

const (
	DefaultMemoryKey = "GT_MEMORY_LOGS_DEFAULT"
	ToggleKey        = "GT_MEMORY"
	// MaxTurns bounds the history sent with each prompt.
	MaxTurns = 40
)

// Identity scopes memory to one signed-in user. The zero value is the
// anonymous local user.
type Identity struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

func MemoryKey(id Identity) string {
	if id.Provider == "" || id.ID == "" {
		return DefaultMemoryKey
	}
	return fmt.Sprintf("gt_user_%s_%s_memory", id.Provider, id.ID)
}

// Memory is the conversation log replayed to the model. When disabled it
// records nothing and contributes no history.
type Memory struct {
	mu      sync.Mutex
	store   kv.Store
	key     string
	enabled bool
	turns   []Turn
}

// LoadMemory reads the toggle and the identity's turn log. An unreadable log
// starts empty.
func LoadMemory(ctx context.Context, store kv.Store, id Identity) (*Memory, error) {
	m := &Memory{store: store, key: MemoryKey(id), enabled: true}

	toggle, err := store.Get(ctx, ToggleKey)
	switch {
	case err == nil:
		m.enabled = toggle != "off"
	case !errors.Is(err, kv.ErrNotFound):
		return nil, fmt.Errorf("read memory toggle: %w", err)
	}

	raw, err := store.Get(ctx, m.key)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal([]byte(raw), &m.turns); jsonErr != nil {
			m.turns = nil
		}
	case !errors.Is(err, kv.ErrNotFound):
		return nil, fmt.Errorf("read memory: %w", err)
	}
	return m, nil
}

func (m *Memory) Key() string { return m.key }

func (m *Memory) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled persists the toggle. Turning memory off forgets the log.
func (m *Memory) SetEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	value := "on"
	if !enabled {
		value = "off"
	}
	if err := m.store.Set(ctx, ToggleKey, value); err != nil {
		return fmt.Errorf("write memory toggle: %w", err)
	}
	m.enabled = enabled
	if !enabled {
		m.turns = nil
		if err := m.store.Remove(ctx, m.key); err != nil {
			return fmt.Errorf("clear memory: %w", err)
		}
	}
	return nil
}

// History returns the turns to send with the next prompt.
func (m *Memory) History() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return nil
	}
	return append([]Turn(nil), m.turns...)
}

// Record appends one exchange and persists the log.
func (m *Memory) Record(ctx context.Context, prompt, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return nil
	}
	m.turns = append(m.turns, Turn{Role: RoleUser, Text: prompt})
	if strings.TrimSpace(response) != "" {
		m.turns = append(m.turns, Turn{Role: RoleModel, Text: response})
	}
	if len(m.turns) > MaxTurns {
		m.turns = append([]Turn(nil), m.turns[len(m.turns)-MaxTurns:]...)
	}
	return m.persist(ctx)
}

// LastPrompt returns the most recent user turn.
func (m *Memory) LastPrompt() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.turns) - 1; i >= 0; i-- {
		if m.turns[i].Role == RoleUser {
			return m.turns[i].Text, true
		}
	}
	return "", false
}

// Backup writes the current log, used on unload.
func (m *Memory) Backup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persist(ctx)
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return m.persist(ctx)
}

func (m *Memory) persist(ctx context.Context) error {
	if len(m.turns) == 0 {
		if err := m.store.Remove(ctx, m.key); err != nil {
			return fmt.Errorf("clear memory: %w", err)
		}
		return nil
	}
	if err := kv.SetJSON(ctx, m.store, m.key, m.turns); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	return nil
}
