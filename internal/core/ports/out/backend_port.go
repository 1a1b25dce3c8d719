package out

import (
	"context"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
)

type StateChangeCallback func(change domain.StateChange)

// BackendPort внешнее хранилище: одна строка на день недели.
// Уведомления доставляются как минимум один раз, дубликаты допустимы.
type BackendPort interface {
	LoadState(ctx context.Context, day domain.WeekDay) (string, error)
	SaveState(ctx context.Context, day domain.WeekDay, value string) error
	OnStateChange(callback StateChangeCallback) (unsubscribe func())
}
