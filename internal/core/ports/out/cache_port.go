package out

import (
	"context"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
)

type CachePort interface {
	// Кэширование разобранных значений хранилища
	GetDecodedSlots(ctx context.Context, raw string) ([]domain.TimeSlot, bool)
	StoreDecodedSlots(ctx context.Context, raw string, slots []domain.TimeSlot)
	InvalidateDecodedSlots(ctx context.Context)
}
