package domain

import "errors"

var (
	// Адаптер хранилища используется до настройки соответствия день -> сущность
	ErrNotInitialized = errors.New("backend adapter is not initialized")
	// Фрагмент сохраненного значения не соответствует формату HH:MM-HH:MM
	ErrInvalidFormat = errors.New("invalid time range format")
	// Хранилище отклонило запись или не ответило вовремя
	ErrWriteFailed = errors.New("backend write failed")
	// Отсутствует или некорректно соответствие дней сущностям
	ErrConfiguration = errors.New("configuration error")

	ErrUnknownDay    = errors.New("unknown day")
	ErrInvalidSlot   = errors.New("invalid time slot")
	ErrSlotNotFound  = errors.New("time slot not found")
	ErrStoreDisposed = errors.New("schedule store is disposed")
)
