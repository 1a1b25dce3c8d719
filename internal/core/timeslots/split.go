package timeslots

import "github.com/suchimauz/weekly-schedule-sync/internal/core/domain"

// IsWrapping сообщает, переходит ли слот через полночь.
// Конец ровно в 00:00 при ненулевом начале тоже считается переходом.
func IsWrapping(slot domain.TimeSlot) bool {
	if slot.End < slot.Start {
		return true
	}
	return slot.End == domain.Midnight && slot.Start > domain.Midnight
}

// Split делит переходящий слот на часть текущего дня (до 23:59)
// и часть следующего дня (с 00:00)
func Split(slot domain.TimeSlot) (current domain.TimeSlot, next domain.TimeSlot) {
	current = domain.TimeSlot{Start: slot.Start, End: domain.LastMinute}
	next = domain.TimeSlot{Start: domain.Midnight, End: slot.End}
	return current, next
}

// Partition раскладывает слоты по текущему и следующему дню без слияния
func Partition(slots []domain.TimeSlot) (currentDay []domain.TimeSlot, nextDay []domain.TimeSlot) {
	currentDay = make([]domain.TimeSlot, 0, len(slots))
	nextDay = make([]domain.TimeSlot, 0)

	for _, slot := range slots {
		if !IsWrapping(slot) {
			currentDay = append(currentDay, slot)
			continue
		}
		current, next := Split(slot)
		// Слот, начавшийся в 23:59, текущему дню ничего не добавляет
		if !current.IsZeroLength() {
			currentDay = append(currentDay, current)
		}
		// Слот, закончившийся ровно в полночь, следующему дню ничего не добавляет
		if !next.IsZeroLength() {
			nextDay = append(nextDay, next)
		}
	}

	return currentDay, nextDay
}
