package schedule_store

import (
	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/timeslots"
)

// enqueueChange вызывается адаптером хранилища и никогда не блокирует его.
// Для каждого дня хранится только последнее значение.
func (s *ScheduleStore) enqueueChange(change domain.StateChange) {
	if !change.Day.IsValid() {
		s.logger.Warn("schedule.reconcile.unknown_day", out.LogFields{
			"day": change.Day,
		})
		return
	}

	s.inboxMu.Lock()
	s.inbox[change.Day] = change.Value
	s.inboxMu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *ScheduleStore) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-s.signal:
			for _, change := range s.drainInbox() {
				s.reconcile(change.Day, change.Value)
			}
		}
	}
}

func (s *ScheduleStore) drainInbox() []domain.StateChange {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()

	changes := make([]domain.StateChange, 0, len(s.inbox))
	for _, day := range domain.WeekDays {
		if value, ok := s.inbox[day]; ok {
			changes = append(changes, domain.StateChange{Day: day, Value: value})
			delete(s.inbox, day)
		}
	}
	return changes
}

// reconcile применяет значение, пришедшее из хранилища.
// Эхо последней собственной записи подтверждает день, эхо более старой записи
// игнорируется, любое другое значение считается внешней записью и побеждает.
func (s *ScheduleStore) reconcile(day domain.WeekDay, value string) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	ds := s.days[day]
	s.prunePending(day, ds)

	if idx := pendingIndex(ds.pending, value); idx >= 0 {
		latest := idx == len(ds.pending)-1
		for _, p := range ds.pending[:idx] {
			if p.value != value {
				ds.supersede(p)
			}
		}
		for _, p := range ds.pending[:idx+1] {
			close(p.done)
		}
		ds.pending = append([]*pendingWrite(nil), ds.pending[idx+1:]...)
		ds.confirmed = value
		s.mu.Unlock()

		event := "schedule.reconcile.confirmed"
		if !latest {
			event = "schedule.reconcile.stale_echo"
		}
		s.logger.Debug(event, out.LogFields{
			"day":   day,
			"value": value,
		})
		return
	}

	// Повторное уведомление о значении, которое уже известно
	if value == ds.confirmed && ds.touched {
		s.mu.Unlock()
		s.logger.Debug("schedule.reconcile.duplicate", out.LogFields{
			"day": day,
		})
		return
	}

	// Эхо более старой записи пришло после подтверждения новой
	if w, ok := ds.findSuperseded(value); ok {
		s.mu.Unlock()
		s.logger.Debug("schedule.reconcile.stale_echo", out.LogFields{
			"day":   day,
			"value": value,
			"seq":   w.seq,
		})
		return
	}

	slots := timeslots.Merge(s.decode(day, value))
	for _, p := range ds.pending {
		close(p.done)
	}
	ds.pending = nil
	ds.confirmed = value
	ds.dirty = false
	ds.touched = true

	changed := !timeslots.Equal(ds.slots, slots)
	ds.slots = slots
	s.mu.Unlock()

	if !changed {
		return
	}

	s.logger.Info("schedule.reconcile.external_write", out.LogFields{
		"day":   day,
		"value": value,
	})
	s.state.UpdateState(day, slots)
}

// pendingIndex ищет запись с таким значением, начиная с самой новой
func pendingIndex(pending []*pendingWrite, value string) int {
	for i := len(pending) - 1; i >= 0; i-- {
		if pending[i].value == value {
			return i
		}
	}
	return -1
}

func (ds *dayState) supersede(p *pendingWrite) {
	ds.superseded = append(ds.superseded, supersededWrite{
		seq:     p.seq,
		value:   p.value,
		savedAt: p.savedAt,
	})
}

func (ds *dayState) findSuperseded(value string) (supersededWrite, bool) {
	for i := len(ds.superseded) - 1; i >= 0; i-- {
		if ds.superseded[i].value == value {
			return ds.superseded[i], true
		}
	}
	return supersededWrite{}, false
}
