package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/in"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

// MemoryAdapter хранилище в памяти процесса.
// Каждая запись асинхронно возвращается уведомлением, как это делает внешний сервер.
type MemoryAdapter struct {
	*Notifier

	mu       sync.RWMutex
	entities EntityMap
	values   map[string]string
	logger   out.LoggerPort
}

var (
	_ out.BackendPort       = (*MemoryAdapter)(nil)
	_ in.StateChangeHandler = (*MemoryAdapter)(nil)
)

func NewMemoryAdapter(logger out.LoggerPort) *MemoryAdapter {
	return &MemoryAdapter{
		Notifier: NewNotifier(),
		values:   make(map[string]string),
		logger:   logger.WithModule("MemoryBackend"),
	}
}

// Configure задает соответствие дней сущностям, до вызова операции возвращают ErrNotInitialized
func (a *MemoryAdapter) Configure(entities map[domain.WeekDay]string) {
	a.mu.Lock()
	a.entities = NewEntityMap(entities)
	a.mu.Unlock()
}

func (a *MemoryAdapter) LoadState(ctx context.Context, day domain.WeekDay) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entityID, err := a.entity(day)
	if err != nil {
		return "", err
	}
	return a.values[entityID], nil
}

func (a *MemoryAdapter) SaveState(ctx context.Context, day domain.WeekDay, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	entityID, err := a.entity(day)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.values[entityID] = value
	a.mu.Unlock()

	a.logger.Debug("backend.memory.saved", out.LogFields{
		"day":      day,
		"entityId": entityID,
		"value":    value,
	})

	go a.Notify(domain.StateChange{Day: day, Value: value})
	return nil
}

// SetExternal имитирует запись другим клиентом хранилища
func (a *MemoryAdapter) SetExternal(day domain.WeekDay, value string) error {
	a.mu.Lock()
	entityID, err := a.entity(day)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.values[entityID] = value
	a.mu.Unlock()

	a.Notify(domain.StateChange{Day: day, Value: value})
	return nil
}

// HandleStateChanged принимает изменение сущности из шины событий.
// Сущности, не относящиеся к расписанию, пропускаются.
func (a *MemoryAdapter) HandleStateChanged(ctx context.Context, entityID string, value string) error {
	a.mu.RLock()
	day, ok := a.entities.Day(entityID)
	a.mu.RUnlock()
	if !ok {
		return nil
	}
	return a.SetExternal(day, value)
}

// Вызывается под a.mu
func (a *MemoryAdapter) entity(day domain.WeekDay) (string, error) {
	if a.entities.IsEmpty() {
		return "", domain.ErrNotInitialized
	}
	entityID, ok := a.entities.Entity(day)
	if !ok {
		return "", fmt.Errorf("%w: no entity for %s", domain.ErrConfiguration, day)
	}
	return entityID, nil
}
