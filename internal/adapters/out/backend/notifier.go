package backend

import (
	"sync"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

// Notifier хранит подписчиков на изменения дней, общий для всех адаптеров хранилища
type Notifier struct {
	mu        sync.RWMutex
	callbacks map[uint64]out.StateChangeCallback
	nextID    uint64
}

func NewNotifier() *Notifier {
	return &Notifier{
		callbacks: make(map[uint64]out.StateChangeCallback),
	}
}

func (n *Notifier) OnStateChange(callback out.StateChangeCallback) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.callbacks[id] = callback
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.callbacks, id)
		n.mu.Unlock()
	}
}

func (n *Notifier) Notify(change domain.StateChange) {
	n.mu.RLock()
	callbacks := make([]out.StateChangeCallback, 0, len(n.callbacks))
	for _, callback := range n.callbacks {
		callbacks = append(callbacks, callback)
	}
	n.mu.RUnlock()

	for _, callback := range callbacks {
		callback(change)
	}
}

// EntityMap двустороннее соответствие день <-> сущность хранилища
type EntityMap struct {
	byDay    map[domain.WeekDay]string
	byEntity map[string]domain.WeekDay
}

func NewEntityMap(entities map[domain.WeekDay]string) EntityMap {
	m := EntityMap{
		byDay:    make(map[domain.WeekDay]string, len(entities)),
		byEntity: make(map[string]domain.WeekDay, len(entities)),
	}
	for day, entityID := range entities {
		m.byDay[day] = entityID
		m.byEntity[entityID] = day
	}
	return m
}

func (m EntityMap) Entity(day domain.WeekDay) (string, bool) {
	entityID, ok := m.byDay[day]
	return entityID, ok
}

func (m EntityMap) Day(entityID string) (domain.WeekDay, bool) {
	day, ok := m.byEntity[entityID]
	return day, ok
}

func (m EntityMap) IsEmpty() bool {
	return len(m.byDay) == 0
}
