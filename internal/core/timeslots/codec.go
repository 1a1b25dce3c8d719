package timeslots

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
)

const (
	SlotSeparator  = ";"
	RangeSeparator = "-"
)

var timeRangePattern = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]-([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

// Encode сериализует слоты в строку вида 09:00-10:00;11:00-12:00, пустой список дает ""
func Encode(slots []domain.TimeSlot) string {
	parts := make([]string, 0, len(slots))
	for _, slot := range slots {
		parts = append(parts, slot.Start.String()+RangeSeparator+slot.End.String())
	}
	return strings.Join(parts, SlotSeparator)
}

// Decode разбирает сохраненное значение без сортировки и слияния.
// Некорректные фрагменты отбрасываются, а ошибка с ErrInvalidFormat
// перечисляет их; валидные слоты возвращаются в любом случае.
func Decode(raw string) ([]domain.TimeSlot, error) {
	slots := make([]domain.TimeSlot, 0)
	if strings.TrimSpace(raw) == "" {
		return slots, nil
	}

	var errs []error
	for _, fragment := range strings.Split(raw, SlotSeparator) {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		if !timeRangePattern.MatchString(fragment) {
			errs = append(errs, fmt.Errorf("%w: %q, expected HH:MM-HH:MM", domain.ErrInvalidFormat, fragment))
			continue
		}

		start, end, _ := strings.Cut(fragment, RangeSeparator)
		slot, err := domain.NewTimeSlot(start, end)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		slots = append(slots, slot)
	}

	return slots, errors.Join(errs...)
}
