package domain

// StateChange уведомление хранилища о новом значении дня
type StateChange struct {
	Day   WeekDay `json:"day"`
	Value string  `json:"value"`
}

type DayStatus string

const (
	// Значение дня совпадает с подтвержденным хранилищем
	DayStatusConfirmed DayStatus = "confirmed"
	// Локальное значение опубликовано, подтверждение от хранилища еще не пришло
	DayStatusPending DayStatus = "pending"
)
