package state_manager

import (
	"fmt"
	"sync"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/in"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

type subscription struct {
	subscriberID string
	callback     in.DayUpdateCallback

	// Удерживается на время вызова callback, отписка ждет его завершения
	mu     sync.Mutex
	active bool
}

// StateManager раздает обновления дней независимым подписчикам.
// Каждый callback получает собственную копию списка слотов.
// Порядок UpdateState обеспечивает вызывающая сторона.
type StateManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]*subscription
	nextToken   uint64
	state       domain.DaySchedule
	logger      out.LoggerPort
}

func NewStateManager(logger out.LoggerPort) *StateManager {
	return &StateManager{
		subscribers: make(map[string]map[uint64]*subscription),
		state:       make(domain.DaySchedule),
		logger:      logger.WithModule("StateManager"),
	}
}

// Subscribe регистрирует callback под идентификатором подписчика.
// После возврата из функции отписки callback больше не вызывается.
// Вызывать отписку изнутри того же callback нельзя.
func (m *StateManager) Subscribe(subscriberID string, callback in.DayUpdateCallback) func() {
	sub := &subscription{
		subscriberID: subscriberID,
		callback:     callback,
		active:       true,
	}

	m.mu.Lock()
	m.nextToken++
	token := m.nextToken
	bucket, exists := m.subscribers[subscriberID]
	if !exists {
		bucket = make(map[uint64]*subscription)
		m.subscribers[subscriberID] = bucket
	}
	bucket[token] = sub
	m.mu.Unlock()

	m.logger.Debug("state.subscribe", out.LogFields{
		"subscriberId": subscriberID,
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if bucket, exists := m.subscribers[subscriberID]; exists {
				delete(bucket, token)
				// Последний callback подписчика удаляет и его корзину
				if len(bucket) == 0 {
					delete(m.subscribers, subscriberID)
				}
			}
			m.mu.Unlock()

			sub.deactivate()

			m.logger.Debug("state.unsubscribe", out.LogFields{
				"subscriberId": subscriberID,
			})
		})
	}
}

func (m *StateManager) UpdateState(day domain.WeekDay, slots []domain.TimeSlot) {
	m.mu.Lock()
	m.state[day] = domain.CloneSlots(slots)
	subs := m.snapshotSubscriptions()
	m.mu.Unlock()

	m.logger.Debug("state.update", out.LogFields{
		"day":         day,
		"slotsCount":  len(slots),
		"subscribers": len(subs),
	})

	for _, sub := range subs {
		m.notify(sub, day, slots)
	}
}

func (m *StateManager) GetState(day domain.WeekDay) []domain.TimeSlot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return domain.CloneSlots(m.state[day])
}

func (m *StateManager) GetAll() domain.DaySchedule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.Clone()
}

func (m *StateManager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.subscribers)
}

// Clear удаляет состояние и всех подписчиков
func (m *StateManager) Clear() {
	m.mu.Lock()
	subs := m.snapshotSubscriptions()
	m.subscribers = make(map[string]map[uint64]*subscription)
	m.state = make(domain.DaySchedule)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deactivate()
	}
}

// Вызывается под m.mu
func (m *StateManager) snapshotSubscriptions() []*subscription {
	subs := make([]*subscription, 0, len(m.subscribers))
	for _, bucket := range m.subscribers {
		for _, sub := range bucket {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (m *StateManager) notify(sub *subscription, day domain.WeekDay, slots []domain.TimeSlot) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if !sub.active {
		return
	}

	// Ошибка одного подписчика не мешает остальным
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("state.notify.subscriber_failed", out.LogFields{
				"subscriberId": sub.subscriberID,
				"day":          day,
				"error":        fmt.Sprint(r),
			})
		}
	}()

	sub.callback(day, domain.CloneSlots(slots))
}

func (s *subscription) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}
