package in

import (
	"context"
	"time"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
)

type DayUpdateCallback func(day domain.WeekDay, slots []domain.TimeSlot)

type ScheduleCallback func(schedule domain.DaySchedule)

type ScheduleUseCase interface {
	// Загрузка всех семи дней из хранилища, повторный вызов после успеха ничего не делает
	Initialize(ctx context.Context) error

	// Полная замена слотов дня с сохранением в хранилище
	UpdateSlots(ctx context.Context, day domain.WeekDay, slots []domain.TimeSlot) error
	// То же без записи в хранилище, для промежуточных состояний интерфейса
	UpdateLocalState(day domain.WeekDay, slots []domain.TimeSlot) error
	// Добавление, изменение или удаление одного слота
	ApplyEdit(ctx context.Context, edit domain.SlotEdit) error

	GetSlots(day domain.WeekDay) []domain.TimeSlot
	GetAllSlots() domain.DaySchedule
	DayStatus(day domain.WeekDay) domain.DayStatus
	IsActiveAt(t time.Time) bool

	Subscribe(subscriberID string, callback DayUpdateCallback) (unsubscribe func())
	SubscribeSchedule(subscriberID string, callback ScheduleCallback) (unsubscribe func())
}

// StateChangeHandler принимает события об изменении сущностей из внешней шины
type StateChangeHandler interface {
	HandleStateChanged(ctx context.Context, entityID string, value string) error
}
