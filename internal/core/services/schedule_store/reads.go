package schedule_store

import (
	"time"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/in"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/timeslots"
	"github.com/suchimauz/weekly-schedule-sync/internal/utils"
)

var _ in.ScheduleUseCase = (*ScheduleStore)(nil)

// GetSlots возвращает копию слотов дня, для неизвестного дня пустой список
func (s *ScheduleStore) GetSlots(day domain.WeekDay) []domain.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.days[day]
	if !ok {
		return []domain.TimeSlot{}
	}
	return domain.CloneSlots(ds.slots)
}

func (s *ScheduleStore) GetAllSlots() domain.DaySchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := make(domain.DaySchedule, len(s.days))
	for day, ds := range s.days {
		schedule[day] = domain.CloneSlots(ds.slots)
	}
	return schedule
}

// DayStatus pending пока последнее локальное значение не подтверждено хранилищем
func (s *ScheduleStore) DayStatus(day domain.WeekDay) domain.DayStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.days[day]
	if !ok {
		return domain.DayStatusConfirmed
	}
	s.prunePending(day, ds)
	if ds.dirty || len(ds.pending) > 0 {
		return domain.DayStatusPending
	}
	return domain.DayStatusConfirmed
}

// IsActiveAt проверяет, попадает ли момент в слот своего дня недели.
// День и минута берутся в часовом поясе t.
func (s *ScheduleStore) IsActiveAt(t time.Time) bool {
	day := domain.WeekDayOf(t)
	return timeslots.Contains(s.GetSlots(day), utils.MinuteOfDay(t))
}

// Subscribe доставляет обновления отдельных дней.
// Callback вызывается синхронно при публикации и не должен менять расписание.
func (s *ScheduleStore) Subscribe(subscriberID string, callback in.DayUpdateCallback) func() {
	return s.state.Subscribe(subscriberID, callback)
}

// SubscribeSchedule доставляет всю неделю после каждого обновления дня
func (s *ScheduleStore) SubscribeSchedule(subscriberID string, callback in.ScheduleCallback) func() {
	return s.state.Subscribe(subscriberID, func(domain.WeekDay, []domain.TimeSlot) {
		callback(s.GetAllSlots())
	})
}
