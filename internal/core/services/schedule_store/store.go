package schedule_store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/services/state_manager"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/timeslots"
)

const (
	DefaultConfirmTimeout = time.Second
	DefaultPendingTTL     = 30 * time.Second

	// Сколько неподтвержденных записей дня хранится одновременно
	maxPendingWrites = 8
)

type Options struct {
	// Сколько UpdateSlots ждет подтверждения записи от хранилища
	ConfirmTimeout time.Duration
	// Через сколько неподтвержденная запись считается потерянной
	PendingTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = DefaultConfirmTimeout
	}
	if o.PendingTTL <= 0 {
		o.PendingTTL = DefaultPendingTTL
	}
	return o
}

type pendingWrite struct {
	seq     uint64
	value   string
	savedAt time.Time
	// Закрывается при подтверждении, вытеснении или отбрасывании записи
	done chan struct{}
}

// supersededWrite запись, после которой хранилище уже подтвердило более новую
type supersededWrite struct {
	seq     uint64
	value   string
	savedAt time.Time
}

type dayState struct {
	slots []domain.TimeSlot
	// День уже заполнен загрузкой, обновлением или уведомлением
	touched bool
	// Последнее значение, известное хранилищу
	confirmed string
	pending   []*pendingWrite
	// Запоздавшее эхо этих значений не считается внешней записью до истечения PendingTTL
	superseded []supersededWrite
	// Локальные изменения, которые не отправлялись или не сохранились
	dirty bool
}

type daySaver struct {
	mu       sync.Mutex
	savedSeq uint64
}

// ScheduleStore единственный владелец недельного расписания.
// Жизненный цикл: NewScheduleStore -> Initialize -> Dispose.
type ScheduleStore struct {
	backend out.BackendPort
	cache   out.CachePort
	state   *state_manager.StateManager
	logger  out.LoggerPort
	opts    Options
	now     func() time.Time

	// Порядок публикаций совпадает с порядком изменений
	publishMu sync.Mutex
	mu        sync.Mutex
	days      map[domain.WeekDay]*dayState
	seq       uint64

	savers map[domain.WeekDay]*daySaver

	initGroup   singleflight.Group
	initialized atomic.Bool

	inboxMu sync.Mutex
	inbox   map[domain.WeekDay]string
	signal  chan struct{}

	unsubscribeBackend func()
	stop               chan struct{}
	done               chan struct{}
	disposeOnce        sync.Once
	disposed           atomic.Bool
}

// NewScheduleStore подписывается на уведомления хранилища и запускает цикл их обработки.
// cache может быть nil.
func NewScheduleStore(
	backend out.BackendPort,
	cache out.CachePort,
	stateManager *state_manager.StateManager,
	logger out.LoggerPort,
	opts Options,
) *ScheduleStore {
	s := &ScheduleStore{
		backend: backend,
		cache:   cache,
		state:   stateManager,
		logger:  logger.WithModule("ScheduleStore"),
		opts:    opts.withDefaults(),
		now:     time.Now,
		days:    make(map[domain.WeekDay]*dayState, len(domain.WeekDays)),
		savers:  make(map[domain.WeekDay]*daySaver, len(domain.WeekDays)),
		inbox:   make(map[domain.WeekDay]string),
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	for _, day := range domain.WeekDays {
		s.days[day] = &dayState{slots: []domain.TimeSlot{}}
		s.savers[day] = &daySaver{}
	}

	s.unsubscribeBackend = backend.OnStateChange(s.enqueueChange)
	go s.run()

	return s
}

// Initialize загружает все семь дней параллельно.
// Одновременные вызовы разделяют одну загрузку, после успеха повторный вызов ничего не делает,
// после ошибки следующий вызов загружает заново.
func (s *ScheduleStore) Initialize(ctx context.Context) error {
	if s.disposed.Load() {
		return domain.ErrStoreDisposed
	}
	if s.initialized.Load() {
		return nil
	}

	// Загрузка общая для всех ожидающих, отмена ctx прекращает только ожидание вызывающего
	result := s.initGroup.DoChan("initialize", func() (interface{}, error) {
		if s.initialized.Load() {
			return nil, nil
		}
		return nil, s.load(context.WithoutCancel(ctx))
	})

	select {
	case res := <-result:
		if res.Err != nil {
			return res.Err
		}
		if res.Shared {
			s.logger.Debug("schedule.initialize.shared", nil)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("schedule.initialize: %w", ctx.Err())
	}
}

func (s *ScheduleStore) load(ctx context.Context) error {
	s.logger.Info("schedule.initialize.started", nil)

	values := make([]string, len(domain.WeekDays))
	g, gctx := errgroup.WithContext(ctx)
	for i, day := range domain.WeekDays {
		i, day := i, day
		g.Go(func() error {
			value, err := s.backend.LoadState(gctx, day)
			if err != nil {
				return fmt.Errorf("schedule.initialize.load %s: %w", day, err)
			}
			values[i] = value
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("schedule.initialize.failed", out.LogFields{
			"error": err.Error(),
		})
		return err
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	loaded := make(domain.DaySchedule, len(domain.WeekDays))
	s.mu.Lock()
	for i, day := range domain.WeekDays {
		ds := s.days[day]
		// День уже изменен обновлением или уведомлением во время загрузки
		if ds.touched {
			continue
		}
		// Сохраненные значения уже нормализованы, слияние не выполняется
		ds.slots = s.decode(day, values[i])
		ds.confirmed = values[i]
		ds.touched = true
		loaded[day] = ds.slots
	}
	s.mu.Unlock()

	for _, day := range domain.WeekDays {
		if slots, ok := loaded[day]; ok {
			s.state.UpdateState(day, slots)
		}
	}

	s.initialized.Store(true)
	s.logger.Info("schedule.initialize.completed", out.LogFields{
		"loadedDays": len(loaded),
	})
	return nil
}

// Dispose отписывается от хранилища, останавливает обработку уведомлений
// и удаляет подписчиков. Повторный вызов безопасен.
func (s *ScheduleStore) Dispose() {
	s.disposeOnce.Do(func() {
		s.disposed.Store(true)
		if s.unsubscribeBackend != nil {
			s.unsubscribeBackend()
		}
		close(s.stop)
		<-s.done

		s.mu.Lock()
		for _, ds := range s.days {
			for _, write := range ds.pending {
				close(write.done)
			}
			ds.pending = nil
		}
		s.mu.Unlock()

		s.state.Clear()
		if s.cache != nil {
			s.cache.InvalidateDecodedSlots(context.Background())
		}
		s.logger.Info("schedule.disposed", nil)
	})
}

// Вызывается под s.mu
func (s *ScheduleStore) decode(day domain.WeekDay, raw string) []domain.TimeSlot {
	ctx := context.Background()
	if s.cache != nil {
		if slots, ok := s.cache.GetDecodedSlots(ctx, raw); ok {
			return slots
		}
	}

	slots, err := timeslots.Decode(raw)
	if err != nil {
		// Значение с отброшенными фрагментами не кэшируется, предупреждение пишется при каждом разборе
		s.logger.Warn("schedule.decode.invalid_fragments", out.LogFields{
			"day":   day,
			"value": raw,
			"error": err.Error(),
		})
		return slots
	}

	if s.cache != nil {
		s.cache.StoreDecodedSlots(ctx, raw, slots)
	}
	return slots
}
