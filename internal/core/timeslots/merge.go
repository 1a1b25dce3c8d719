package timeslots

import (
	"sort"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
)

// Merge нормализует слоты: сортирует по началу и склеивает пересекающиеся
// и смежные интервалы (конец одного равен началу следующего).
// Переходящие через полночь слоты на вход не подаются, см. Split.
func Merge(slots []domain.TimeSlot) []domain.TimeSlot {
	if len(slots) == 0 {
		return []domain.TimeSlot{}
	}

	ranges := domain.CloneSlots(slots)
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].Start < ranges[j].Start
	})

	merged := make([]domain.TimeSlot, 0, len(ranges))
	current := ranges[0]
	for _, next := range ranges[1:] {
		// Пересечение или смежность
		if next.Start <= current.End {
			if next.End > current.End {
				current.End = next.End
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}

	return append(merged, current)
}

// Equal сравнивает списки поэлементно
func Equal(a, b []domain.TimeSlot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Contains проверяет, попадает ли минута дня в один из слотов [Start, End).
// Конец 23:59 считается концом дня, чтобы последняя минута не выпадала.
func Contains(slots []domain.TimeSlot, minute domain.SlotTime) bool {
	for _, slot := range slots {
		end := slot.End
		if end == domain.LastMinute {
			end = domain.MinutesPerDay
		}
		if minute >= slot.Start && minute < end {
			return true
		}
	}
	return false
}
