package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/openai/openai-go"
)

var (
	ErrInvalidContextIndex = fmt.Errorf("invalid context index")
)

type TalkContextInfo struct {
	Index   int
	Title   string
	Current bool
}

type TalkContext struct {
	Messages []openai.ChatCompletionMessageParamUnion `json:"messages"`
}

// TalkContextManager manages multiple talk contexts and tracks the
// current one.
type TalkContextManager struct {
	mu       sync.RWMutex
	contexts []*TalkContext
	current  int

	restoreOnce sync.Once
}

// ensureCurrent must be called with mu held.
func (m *TalkContextManager) ensureCurrent() {
	if m.current == 0 && len(m.contexts) == 0 {
		m.contexts = append(m.contexts, &TalkContext{})
		m.current = 0
	}
}

func (m *TalkContextManager) addMsg(msg openai.ChatCompletionMessageParamUnion) *TalkContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCurrent()
	m.contexts[m.current].Messages = append(m.contexts[m.current].Messages, msg)
	return m.contexts[m.current]
}

func (m *TalkContextManager) setMsgs(msgs []openai.ChatCompletionMessageParamUnion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCurrent()
	m.contexts[m.current].Messages = msgs
}

// Clear empties the current context.
func (m *TalkContextManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.contexts) == 0 {
		return
	}
	m.contexts[m.current].Messages = nil
}

// New creates a fresh context and makes it current.
func (m *TalkContextManager) New() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts = append(m.contexts, &TalkContext{})
	m.current = len(m.contexts) - 1
}

// Delete removes the context at index, shifting the current one if needed.
func (m *TalkContextManager) Delete(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.contexts) {
		return ErrInvalidContextIndex
	}
	m.contexts = append(m.contexts[:index], m.contexts[index+1:]...)
	if m.current >= index && m.current > 0 {
		m.current--
	}
	return nil
}

// SwitchTo makes the context at index current.
func (m *TalkContextManager) SwitchTo(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.contexts) {
		return ErrInvalidContextIndex
	}
	m.current = index
	return nil
}

// List describes all contexts; the title is the first message when there
// is one.
func (m *TalkContextManager) List() []*TalkContextInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var infos []*TalkContextInfo
	for i, c := range m.contexts {
		info := TalkContextInfo{
			Index: i,
			Title: "New context",
		}
		if len(c.Messages) > 0 {
			if str, ok := c.Messages[0].GetContent().AsAny().(*string); ok {
				info.Title = *str
			}
		}
		if i == m.current {
			info.Current = true
		}
		infos = append(infos, &info)
	}
	return infos
}

// Save writes all contexts to store.
func (m *TalkContextManager) Save(store string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.Create(store)
	if err != nil {
		return fmt.Errorf("create llm contexts store: %w", err)
	}
	if err := json.NewEncoder(f).Encode(map[string]any{"current": m.current, "contexts": m.contexts}); err != nil {
		return fmt.Errorf("encode llm contexts store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close llm contexts store: %w", err)
	}
	return nil
}

// Load restores contexts from store; a missing file is not an error.
func (m *TalkContextManager) Load(store string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.Open(store)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open llm contexts store: %w", err)
	}
	defer f.Close()
	var stored struct {
		Current  int            `json:"current"`
		Contexts []*TalkContext `json:"contexts"`
	}
	if err := json.NewDecoder(f).Decode(&stored); err != nil {
		return fmt.Errorf("decode llm contexts store: %w", err)
	}
	m.contexts = stored.Contexts
	m.current = stored.Current
	return nil
}

// LoadOnce restores contexts from store at most once.
func (m *TalkContextManager) LoadOnce(store string) (err error) {
	m.restoreOnce.Do(func() {
		err = m.Load(store)
	})
	return
}
