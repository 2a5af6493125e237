package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gamingbot/internal/models"
)

var errBackend = errors.New("connection refused")

type memCooldowns struct {
	mu   sync.Mutex
	last map[string]time.Time
	sets int
	err  error
}

func newMemCooldowns() *memCooldowns {
	return &memCooldowns{last: map[string]time.Time{}}
}

func (m *memCooldowns) LastNotified(_ context.Context, guildID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return time.Time{}, false, m.err
	}
	at, ok := m.last[guildID]
	return at, ok, nil
}

func (m *memCooldowns) SetLastNotified(_ context.Context, guildID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sets++
	m.last[guildID] = at
	return nil
}

type memSubscribers struct {
	mu    sync.Mutex
	flags map[string]map[string]bool
	err   error
}

func newMemSubscribers() *memSubscribers {
	return &memSubscribers{flags: map[string]map[string]bool{}}
}

func (m *memSubscribers) SubscriberIDs(_ context.Context, guildID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for id, on := range m.flags[guildID] {
		if on {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memSubscribers) IsSubscriber(_ context.Context, guildID, memberID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.flags[guildID][memberID], nil
}

func (m *memSubscribers) SetSubscriber(_ context.Context, guildID, memberID string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.flags[guildID] == nil {
		m.flags[guildID] = map[string]bool{}
	}
	m.flags[guildID][memberID] = on
	return nil
}

type memRoles struct {
	mu      sync.Mutex
	members map[string]map[string]bool // guild -> member set, nil guild means role missing
	calls   int
	err     error

	// afterFetch runs once RoleMembers has taken its snapshot
	afterFetch func()
}

func newMemRoles() *memRoles {
	return &memRoles{members: map[string]map[string]bool{}}
}

func (m *memRoles) RoleMembers(_ context.Context, guildID, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	set, ok := m.members[guildID]
	if !ok {
		return nil, models.ErrRoleNotFound
	}
	var ids []string
	for id := range set {
		ids = append(ids, id)
	}
	if m.afterFetch != nil {
		m.afterFetch()
	}
	return ids, nil
}

func (m *memRoles) HasRole(_ context.Context, guildID, memberID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	set, ok := m.members[guildID]
	if !ok {
		return false, models.ErrRoleNotFound
	}
	return set[memberID], nil
}

func (m *memRoles) SetMemberRole(_ context.Context, guildID, memberID, _ string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	set, ok := m.members[guildID]
	if !ok {
		return models.ErrRoleNotFound
	}
	if on {
		set[memberID] = true
	} else {
		delete(set, memberID)
	}
	return nil
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent map[string]string
	fail map[string]error
	seen []string
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{sent: map[string]string{}, fail: map[string]error{}}
}

func (m *recordingMessenger) SendDirect(_ context.Context, memberID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, memberID)
	if err := m.fail[memberID]; err != nil {
		return err
	}
	m.sent[memberID] = text
	return nil
}
