package sopr

import (
	"errors"
	"fmt"
	lru "github.com/hashicorp/golang-lru/v2"
	"regexp"
	"sopr-stats-sol/internal/sopr/analytics"
	"sync"
)

const DefaultSession = "default"

var (
	ErrInvalidSession = errors.New("invalid session id")

	sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)
)

// SessionStore 每个会话独立的 SOPR 历史窗口，按 LRU 淘汰
type SessionStore struct {
	mu         sync.Mutex
	cache      *lru.Cache[string, *analytics.History]
	newHistory func() *analytics.History
}

func NewSessionStore(capacity int, newHistory func() *analytics.History) (*SessionStore, error) {
	cache, err := lru.New[string, *analytics.History](capacity)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &SessionStore{cache: cache, newHistory: newHistory}, nil
}

// NormalizeSession 空值使用默认会话
func NormalizeSession(session string) (string, error) {
	if session == "" {
		return DefaultSession, nil
	}
	if !sessionPattern.MatchString(session) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSession, session)
	}
	return session, nil
}

// History 获取会话的历史窗口，不存在时创建
func (s *SessionStore) History(session string) *analytics.History {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.cache.Get(session); ok {
		return h
	}
	h := s.newHistory()
	s.cache.Add(session, h)
	return h
}

// Peek 只读查询，不创建也不刷新 LRU 顺序
func (s *SessionStore) Peek(session string) (*analytics.History, bool) {
	return s.cache.Peek(session)
}

// Reset 丢弃会话历史
func (s *SessionStore) Reset(session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(session)
}

func (s *SessionStore) Len() int {
	return s.cache.Len()
}
