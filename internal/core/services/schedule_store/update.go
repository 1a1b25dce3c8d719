package schedule_store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/timeslots"
)

type dayWrite struct {
	day   domain.WeekDay
	value string
	// nil если значение уже подтверждено хранилищем и ждать эхо не нужно
	pending *pendingWrite
}

// UpdateSlots заменяет слоты дня. Переходящие через полночь слоты делятся между
// днем и следующим днем, оба дня публикуются сразу и затем сохраняются параллельно.
// При ошибке записи локальное состояние не откатывается.
func (s *ScheduleStore) UpdateSlots(ctx context.Context, day domain.WeekDay, slots []domain.TimeSlot) error {
	return s.update(ctx, day, slots, true)
}

// UpdateLocalState то же, что UpdateSlots, но без записи в хранилище
func (s *ScheduleStore) UpdateLocalState(day domain.WeekDay, slots []domain.TimeSlot) error {
	return s.update(context.Background(), day, slots, false)
}

// ApplyEdit превращает изменение одного слота в полную замену списка дня
func (s *ScheduleStore) ApplyEdit(ctx context.Context, edit domain.SlotEdit) error {
	if !edit.Day.IsValid() {
		return fmt.Errorf("schedule.edit: %w: %q", domain.ErrUnknownDay, edit.Day)
	}

	slots, err := edit.Apply(s.GetSlots(edit.Day))
	if err != nil {
		return fmt.Errorf("schedule.edit.%s: %w", edit.Kind, err)
	}

	s.logger.Debug("schedule.edit.applied", out.LogFields{
		"day":  edit.Day,
		"kind": edit.Kind,
	})
	return s.UpdateSlots(ctx, edit.Day, slots)
}

func (s *ScheduleStore) update(ctx context.Context, day domain.WeekDay, slots []domain.TimeSlot, persist bool) error {
	if s.disposed.Load() {
		return domain.ErrStoreDisposed
	}
	if !day.IsValid() {
		return fmt.Errorf("schedule.update: %w: %q", domain.ErrUnknownDay, day)
	}
	for _, slot := range slots {
		if !slot.Start.IsValid() || !slot.End.IsValid() {
			return fmt.Errorf("schedule.update: %w: %s", domain.ErrInvalidSlot, slot)
		}
	}

	nextDay := day.Next()
	currentPart, nextPart := timeslots.Partition(slots)
	currentSlots := timeslots.Merge(currentPart)

	s.publishMu.Lock()

	s.mu.Lock()
	// Слоты следующего дня с началом в 00:00 считаются остатком прежнего
	// перехода через полночь и заменяются, а не накапливаются
	existing := s.days[nextDay].slots
	carried := make([]domain.TimeSlot, 0, len(existing)+len(nextPart))
	for _, slot := range existing {
		if slot.Start != domain.Midnight {
			carried = append(carried, slot)
		}
	}
	nextSlots := timeslots.Merge(append(carried, nextPart...))

	s.seq++
	seq := s.seq
	writes := []dayWrite{
		s.applyLocal(day, currentSlots, seq, persist),
		s.applyLocal(nextDay, nextSlots, seq, persist),
	}
	s.mu.Unlock()

	s.state.UpdateState(day, currentSlots)
	s.state.UpdateState(nextDay, nextSlots)
	s.publishMu.Unlock()

	s.logger.Debug("schedule.update.published", out.LogFields{
		"day":          day,
		"slots":        timeslots.Encode(currentSlots),
		"nextDay":      nextDay,
		"nextDaySlots": timeslots.Encode(nextSlots),
		"persist":      persist,
		"seq":          seq,
	})

	if !persist {
		return nil
	}

	return s.persist(ctx, seq, writes)
}

// Вызывается под s.mu
func (s *ScheduleStore) applyLocal(day domain.WeekDay, slots []domain.TimeSlot, seq uint64, persist bool) dayWrite {
	ds := s.days[day]
	ds.slots = slots
	ds.touched = true

	write := dayWrite{day: day, value: timeslots.Encode(slots)}
	if !persist {
		ds.dirty = true
		return write
	}

	s.prunePending(day, ds)
	ds.dirty = false
	// Хранилище уже содержит это значение и не пришлет уведомление
	if write.value == ds.confirmed && len(ds.pending) == 0 {
		return write
	}

	write.pending = &pendingWrite{
		seq:     seq,
		value:   write.value,
		savedAt: s.now(),
		done:    make(chan struct{}),
	}
	ds.pending = append(ds.pending, write.pending)
	if len(ds.pending) > maxPendingWrites {
		dropped := ds.pending[:len(ds.pending)-maxPendingWrites]
		for _, old := range dropped {
			if old.value != write.value {
				ds.supersede(old)
			}
			close(old.done)
		}
		ds.pending = append([]*pendingWrite(nil), ds.pending[len(dropped):]...)
	}
	return write
}

func (s *ScheduleStore) persist(ctx context.Context, seq uint64, writes []dayWrite) error {
	errs := make([]error, len(writes))

	var wg sync.WaitGroup
	for i, write := range writes {
		i, write := i, write
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.saveDay(ctx, seq, write)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (s *ScheduleStore) saveDay(ctx context.Context, seq uint64, write dayWrite) error {
	saver := s.savers[write.day]
	saver.mu.Lock()
	// Более новая запись этого дня уже сохранена
	if saver.savedSeq > seq {
		saver.mu.Unlock()
		s.logger.Debug("schedule.save.superseded", out.LogFields{
			"day": write.day,
			"seq": seq,
		})
		return nil
	}

	err := s.backend.SaveState(ctx, write.day, write.value)
	if err == nil {
		saver.savedSeq = seq
	}
	saver.mu.Unlock()

	if err != nil {
		s.failPending(write)
		s.logger.Error("schedule.save.failed", out.LogFields{
			"day":   write.day,
			"value": write.value,
			"seq":   seq,
			"error": err.Error(),
		})
		if errors.Is(err, domain.ErrWriteFailed) {
			return fmt.Errorf("schedule.save %s: %w", write.day, err)
		}
		return fmt.Errorf("schedule.save %s: %w: %w", write.day, domain.ErrWriteFailed, err)
	}

	if write.pending != nil {
		s.awaitConfirmation(ctx, write)
	}
	return nil
}

// awaitConfirmation ждет эхо записи не дольше ConfirmTimeout.
// По истечении времени запись остается pending, вызывающий продолжает оптимистично.
func (s *ScheduleStore) awaitConfirmation(ctx context.Context, write dayWrite) {
	timer := time.NewTimer(s.opts.ConfirmTimeout)
	defer timer.Stop()

	select {
	case <-write.pending.done:
	case <-timer.C:
		s.logger.Warn("schedule.save.confirmation_timeout", out.LogFields{
			"day":     write.day,
			"seq":     write.pending.seq,
			"timeout": s.opts.ConfirmTimeout.String(),
		})
	case <-ctx.Done():
	}
}

func (s *ScheduleStore) failPending(write dayWrite) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.days[write.day]
	for i, p := range ds.pending {
		if write.pending != nil && p == write.pending {
			close(p.done)
			ds.pending = append(ds.pending[:i:i], ds.pending[i+1:]...)
			break
		}
	}
	// Локальное значение осталось, но хранилище его не приняло
	if len(ds.pending) == 0 {
		ds.dirty = true
	}
}

// Вызывается под s.mu
func (s *ScheduleStore) prunePending(day domain.WeekDay, ds *dayState) {
	deadline := s.now().Add(-s.opts.PendingTTL)

	if len(ds.superseded) > 0 {
		superseded := ds.superseded[:0:0]
		for _, w := range ds.superseded {
			if !w.savedAt.Before(deadline) {
				superseded = append(superseded, w)
			}
		}
		ds.superseded = superseded
	}

	if len(ds.pending) == 0 {
		return
	}

	kept := ds.pending[:0:0]
	for _, p := range ds.pending {
		if p.savedAt.Before(deadline) {
			close(p.done)
			s.logger.Warn("schedule.save.lost", out.LogFields{
				"day":   day,
				"seq":   p.seq,
				"value": p.value,
			})
			continue
		}
		kept = append(kept, p)
	}

	if len(kept) == 0 && len(ds.pending) > 0 {
		ds.dirty = true
	}
	ds.pending = kept
}
