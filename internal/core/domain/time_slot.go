package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	// LastMinute конец текущего дня для слота, переходящего через полночь
	LastMinute SlotTime = MinutesPerDay - 1
	Midnight   SlotTime = 0
)

// SlotTime количество минут с полуночи в диапазоне [0, 1439]
type SlotTime int

func NewSlotTime(hours, minutes int) (SlotTime, error) {
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidSlot, hours, minutes)
	}
	return SlotTime(hours*60 + minutes), nil
}

// ParseSlotTime разбирает строго формат HH:MM
func ParseSlotTime(str string) (SlotTime, error) {
	if len(str) != 5 || str[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, str)
	}
	hours, ok1 := parseTwoDigits(str[0:2])
	minutes, ok2 := parseTwoDigits(str[3:5])
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, str)
	}
	t, err := NewSlotTime(hours, minutes)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, str)
	}
	return t, nil
}

func MustParseSlotTime(str string) SlotTime {
	t, err := ParseSlotTime(str)
	if err != nil {
		panic(err)
	}
	return t
}

func parseTwoDigits(str string) (int, bool) {
	if str[0] < '0' || str[0] > '9' || str[1] < '0' || str[1] > '9' {
		return 0, false
	}
	return int(str[0]-'0')*10 + int(str[1]-'0'), true
}

func (t SlotTime) Hours() int   { return int(t) / 60 }
func (t SlotTime) Minutes() int { return int(t) % 60 }

func (t SlotTime) IsValid() bool {
	return t >= 0 && t < MinutesPerDay
}

func (t SlotTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hours(), t.Minutes())
}

func (t SlotTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *SlotTime) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("failed to parse time: %w", err)
	}
	parsed, err := ParseSlotTime(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeSlot полуоткрытый интервал [Start, End) внутри одного дня.
// Слот с End < Start переходит через полночь и в сохраненных списках не встречается.
type TimeSlot struct {
	Start SlotTime `json:"start"`
	End   SlotTime `json:"end"`
}

func NewTimeSlot(start, end string) (TimeSlot, error) {
	s, err := ParseSlotTime(start)
	if err != nil {
		return TimeSlot{}, err
	}
	e, err := ParseSlotTime(end)
	if err != nil {
		return TimeSlot{}, err
	}
	return TimeSlot{Start: s, End: e}, nil
}

// MustTimeSlot удобен для констант и тестов
func MustTimeSlot(start, end string) TimeSlot {
	slot, err := NewTimeSlot(start, end)
	if err != nil {
		panic(err)
	}
	return slot
}

func (s TimeSlot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// Duration длительность слота, переход через полночь учитывается
func (s TimeSlot) Duration() time.Duration {
	minutes := int(s.End) - int(s.Start)
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	return time.Duration(minutes) * time.Minute
}

func (s TimeSlot) IsZeroLength() bool {
	return s.Start == s.End
}

// DaySchedule слоты по дням недели, владелец только ScheduleStore
type DaySchedule map[WeekDay][]TimeSlot

func (d DaySchedule) Clone() DaySchedule {
	clone := make(DaySchedule, len(d))
	for day, slots := range d {
		clone[day] = CloneSlots(slots)
	}
	return clone
}

// CloneSlots всегда возвращает не-nil слайс, чтобы пустой день сериализовался как []
func CloneSlots(slots []TimeSlot) []TimeSlot {
	clone := make([]TimeSlot, len(slots))
	copy(clone, slots)
	return clone
}
