package domain

import (
	"fmt"
	"strings"
	"time"
)

type WeekDay string

const (
	WeekDayMonday    WeekDay = "monday"
	WeekDayTuesday   WeekDay = "tuesday"
	WeekDayWednesday WeekDay = "wednesday"
	WeekDayThursday  WeekDay = "thursday"
	WeekDayFriday    WeekDay = "friday"
	WeekDaySaturday  WeekDay = "saturday"
	WeekDaySunday    WeekDay = "sunday"
)

// WeekDays перечисляет дни в каноническом порядке, неделя начинается с понедельника
var WeekDays = []WeekDay{
	WeekDayMonday,
	WeekDayTuesday,
	WeekDayWednesday,
	WeekDayThursday,
	WeekDayFriday,
	WeekDaySaturday,
	WeekDaySunday,
}

var WeekDaysMap = map[time.Weekday]WeekDay{
	time.Monday:    WeekDayMonday,
	time.Tuesday:   WeekDayTuesday,
	time.Wednesday: WeekDayWednesday,
	time.Thursday:  WeekDayThursday,
	time.Friday:    WeekDayFriday,
	time.Saturday:  WeekDaySaturday,
	time.Sunday:    WeekDaySunday,
}

func ParseWeekDay(str string) (WeekDay, error) {
	day := WeekDay(strings.ToLower(strings.TrimSpace(str)))
	if !day.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDay, str)
	}
	return day, nil
}

func WeekDayOf(t time.Time) WeekDay {
	return WeekDaysMap[t.Weekday()]
}

func (d WeekDay) IsValid() bool {
	return d.Index() >= 0
}

// Index возвращает позицию дня в WeekDays или -1
func (d WeekDay) Index() int {
	for i, day := range WeekDays {
		if day == d {
			return i
		}
	}
	return -1
}

// Next возвращает следующий день, после воскресенья идет понедельник
func (d WeekDay) Next() WeekDay {
	index := d.Index()
	if index < 0 {
		return ""
	}
	return WeekDays[(index+1)%len(WeekDays)]
}

func (d WeekDay) String() string {
	return string(d)
}
