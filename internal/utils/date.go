package utils

import (
	"fmt"
	"time"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
)

// LoadLocation возвращает часовой пояс по имени, при ошибке UTC
func LoadLocation(name string) *time.Location {
	location, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return location
}

// MinuteOfDay количество минут с начала дня t в его часовом поясе
func MinuteOfDay(t time.Time) domain.SlotTime {
	return domain.SlotTime(t.Hour()*60 + t.Minute())
}

// ParseDate парсит дату из строки в формате RFC3339, если не удается, то пробует дату со временем без таймзоны.
// Дата без таймзоны считается заданной в location.
func ParseDate(str string, location *time.Location) (time.Time, error) {
	parsedDate, err := time.Parse(time.RFC3339, str)
	if err == nil {
		return parsedDate.In(location), nil
	}

	parsedDate, err = time.ParseInLocation("2006-01-02T15:04:05", str, location)
	if err != nil {
		parsedDate, err = time.ParseInLocation("2006-01-02T15:04", str, location)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse time: %v", err)
		}
	}

	return parsedDate, nil
}
