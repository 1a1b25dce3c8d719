package schedule_store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxatome/go-testdeep/td"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/backend"
	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/cache"
	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/logger"
	"github.com/suchimauz/weekly-schedule-sync/internal/config"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/services/state_manager"
)

type fakeBackend struct {
	*backend.Notifier

	mu        sync.Mutex
	values    map[domain.WeekDay]string
	saved     []domain.StateChange
	loadCalls int
	loadGate  chan struct{}
	loadErr   map[domain.WeekDay]error
	saveErr   map[domain.WeekDay]error
	echo      bool
}

func newFakeBackend(echo bool) *fakeBackend {
	return &fakeBackend{
		Notifier: backend.NewNotifier(),
		values:   make(map[domain.WeekDay]string),
		loadErr:  make(map[domain.WeekDay]error),
		saveErr:  make(map[domain.WeekDay]error),
		echo:     echo,
	}
}

func (f *fakeBackend) LoadState(ctx context.Context, day domain.WeekDay) (string, error) {
	f.mu.Lock()
	f.loadCalls++
	gate := f.loadGate
	err := f.loadErr[day]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[day], nil
}

func (f *fakeBackend) SaveState(ctx context.Context, day domain.WeekDay, value string) error {
	f.mu.Lock()
	if err := f.saveErr[day]; err != nil {
		f.mu.Unlock()
		return err
	}
	f.values[day] = value
	f.saved = append(f.saved, domain.StateChange{Day: day, Value: value})
	echo := f.echo
	f.mu.Unlock()

	if echo {
		go f.Notify(domain.StateChange{Day: day, Value: value})
	}
	return nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadCalls
}

func (f *fakeBackend) value(day domain.WeekDay) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[day]
}

func newTestStore(t testing.TB, b *fakeBackend, opts Options) *ScheduleStore {
	log := logger.NewZapLoggerFrom(zap.NewNop())
	s := NewScheduleStore(b, nil, state_manager.NewStateManager(log), log, opts)
	t.Cleanup(s.Dispose)
	return s
}

func slot(start, end string) domain.TimeSlot {
	return domain.MustTimeSlot(start, end)
}

func pendingCount(s *ScheduleStore, day domain.WeekDay) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.days[day].pending)
}

func TestInitializeLoadsAllDays(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	b.values[domain.WeekDayMonday] = "11:00-12:00;09:00-10:00"
	b.values[domain.WeekDayWednesday] = "09:00-10:00;garbage;11:00-12:00"
	s := newTestStore(tt, b, Options{})

	var published []domain.WeekDay
	s.Subscribe("test", func(day domain.WeekDay, _ []domain.TimeSlot) {
		published = append(published, day)
	})

	t.CmpNoError(s.Initialize(context.Background()))

	t.Cmp(s.GetSlots(domain.WeekDayMonday),
		[]domain.TimeSlot{slot("11:00", "12:00"), slot("09:00", "10:00")},
		"persisted values are not merged on load")
	t.Cmp(s.GetSlots(domain.WeekDayWednesday),
		[]domain.TimeSlot{slot("09:00", "10:00"), slot("11:00", "12:00")},
		"malformed fragment dropped")
	t.Cmp(s.GetSlots(domain.WeekDaySunday), []domain.TimeSlot{})
	t.Cmp(published, domain.WeekDays, "every day published in order")
	t.Cmp(s.DayStatus(domain.WeekDayMonday), domain.DayStatusConfirmed)

	t.CmpNoError(s.Initialize(context.Background()))
	t.Cmp(b.calls(), 7, "second call does not reload")
}

func TestInitializeConcurrentCallsShareLoad(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	b.loadGate = make(chan struct{})
	s := newTestStore(tt, b, Options{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Initialize(context.Background())
		}()
	}

	require.Eventually(tt, func() bool { return b.calls() == 7 }, time.Second, time.Millisecond)
	close(b.loadGate)
	wg.Wait()

	for _, err := range errs {
		t.CmpNoError(err)
	}
	t.Cmp(b.calls(), 7)
}

func TestInitializeCallerCancelDoesNotFailOthers(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	b.loadGate = make(chan struct{})
	b.values[domain.WeekDayThursday] = "14:00-15:00"
	s := newTestStore(tt, b, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan error, 1)
	go func() { first <- s.Initialize(ctx) }()
	require.Eventually(tt, func() bool { return b.calls() == 7 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- s.Initialize(context.Background()) }()

	cancel()
	t.Cmp(<-first, td.ErrorIs(context.Canceled), "only the canceled caller stops waiting")

	close(b.loadGate)
	t.CmpNoError(<-second)
	t.Cmp(b.calls(), 7, "load is not restarted")
	t.Cmp(s.GetSlots(domain.WeekDayThursday), []domain.TimeSlot{slot("14:00", "15:00")})
	t.CmpNoError(s.Initialize(context.Background()))
}

func TestInitializeRetriesAfterFailure(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	b.loadErr[domain.WeekDayWednesday] = errors.New("connection refused")
	b.values[domain.WeekDayFriday] = "08:00-09:00"
	s := newTestStore(tt, b, Options{})

	err := s.Initialize(context.Background())
	t.CmpError(err)
	t.Contains(err.Error(), "wednesday")
	t.Cmp(s.GetSlots(domain.WeekDayFriday), []domain.TimeSlot{}, "nothing applied on failure")

	b.mu.Lock()
	delete(b.loadErr, domain.WeekDayWednesday)
	b.mu.Unlock()

	t.CmpNoError(s.Initialize(context.Background()))
	t.Cmp(s.GetSlots(domain.WeekDayFriday), []domain.TimeSlot{slot("08:00", "09:00")})
	t.Cmp(b.calls(), 14)
}

func TestInitializeKeepsDaysChangedDuringLoad(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	b.loadGate = make(chan struct{})
	b.values[domain.WeekDayMonday] = "12:00-13:00"
	b.values[domain.WeekDayWednesday] = "12:00-13:00"
	s := newTestStore(tt, b, Options{})

	done := make(chan error, 1)
	go func() { done <- s.Initialize(context.Background()) }()

	require.Eventually(tt, func() bool { return b.calls() == 7 }, time.Second, time.Millisecond)
	t.CmpNoError(s.UpdateLocalState(domain.WeekDayMonday, []domain.TimeSlot{slot("08:00", "09:00")}))
	close(b.loadGate)
	t.CmpNoError(<-done)

	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("08:00", "09:00")})
	t.Cmp(s.GetSlots(domain.WeekDayWednesday), []domain.TimeSlot{slot("12:00", "13:00")})
}

func TestUpdateSlotsMergesAndPersists(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	var got []domain.TimeSlot
	s.Subscribe("test", func(day domain.WeekDay, slots []domain.TimeSlot) {
		if day == domain.WeekDayThursday {
			got = slots
		}
	})

	err := s.UpdateSlots(context.Background(), domain.WeekDayThursday, []domain.TimeSlot{
		slot("12:00", "14:00"),
		slot("09:00", "11:00"),
		slot("10:00", "12:00"),
		slot("16:00", "17:00"),
	})
	t.CmpNoError(err)

	want := []domain.TimeSlot{slot("09:00", "14:00"), slot("16:00", "17:00")}
	t.Cmp(got, want)
	t.Cmp(s.GetSlots(domain.WeekDayThursday), want)
	t.Cmp(b.value(domain.WeekDayThursday), "09:00-14:00;16:00-17:00")
	t.Cmp(s.DayStatus(domain.WeekDayThursday), domain.DayStatusConfirmed)
	t.Cmp(s.DayStatus(domain.WeekDayFriday), domain.DayStatusConfirmed)
}

func TestWrapAccretionGuard(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	wrap := []domain.TimeSlot{slot("23:00", "01:00")}
	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, wrap))
	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, wrap))

	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("23:00", "23:59")})
	t.Cmp(s.GetSlots(domain.WeekDayTuesday), []domain.TimeSlot{slot("00:00", "01:00")})
	t.Cmp(b.value(domain.WeekDayTuesday), "00:00-01:00")
}

func TestWrapKeepsLaterNextDaySlots(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	t.CmpNoError(s.UpdateLocalState(domain.WeekDaySunday, []domain.TimeSlot{slot("10:00", "11:00")}))
	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDaySaturday, []domain.TimeSlot{slot("22:00", "02:00")}))
	t.Cmp(s.GetSlots(domain.WeekDaySunday), []domain.TimeSlot{slot("00:00", "02:00"), slot("10:00", "11:00")})

	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDaySaturday, []domain.TimeSlot{slot("22:00", "00:00")}))
	t.Cmp(s.GetSlots(domain.WeekDaySaturday), []domain.TimeSlot{slot("22:00", "23:59")})
	t.Cmp(s.GetSlots(domain.WeekDaySunday), []domain.TimeSlot{slot("10:00", "11:00")},
		"slot ending at midnight removes the previous fragment")

	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDaySunday, []domain.TimeSlot{slot("23:30", "00:30")}))
	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("00:00", "00:30")}, "sunday wraps into monday")
}

func TestSubscriberIsolation(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	var first, second []domain.TimeSlot
	s.Subscribe("first", func(day domain.WeekDay, slots []domain.TimeSlot) {
		if day == domain.WeekDayMonday {
			first = slots
		}
	})
	s.Subscribe("second", func(day domain.WeekDay, slots []domain.TimeSlot) {
		if day == domain.WeekDayMonday {
			second = slots
		}
	})

	t.CmpNoError(s.UpdateLocalState(domain.WeekDayMonday, []domain.TimeSlot{slot("09:00", "10:00")}))

	first[0] = slot("00:00", "23:59")
	t.Cmp(second, []domain.TimeSlot{slot("09:00", "10:00")})
	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("09:00", "10:00")})

	read := s.GetSlots(domain.WeekDayMonday)
	read[0] = slot("01:00", "02:00")
	t.Cmp(s.GetAllSlots()[domain.WeekDayMonday], []domain.TimeSlot{slot("09:00", "10:00")})
}

func TestUpdateLocalStateDoesNotPersist(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	t.CmpNoError(s.UpdateLocalState(domain.WeekDayFriday, []domain.TimeSlot{slot("09:00", "10:00")}))

	t.Len(b.saved, 0)
	t.Cmp(s.GetSlots(domain.WeekDayFriday), []domain.TimeSlot{slot("09:00", "10:00")})
	t.Cmp(s.DayStatus(domain.WeekDayFriday), domain.DayStatusPending)
}

func TestWriteFailureKeepsOptimisticState(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	b.saveErr[domain.WeekDayMonday] = errors.New("service unavailable")
	s := newTestStore(tt, b, Options{})

	err := s.UpdateSlots(context.Background(), domain.WeekDayMonday, []domain.TimeSlot{slot("09:00", "10:00")})
	t.Cmp(err, td.ErrorIs(domain.ErrWriteFailed))

	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("09:00", "10:00")}, "no rollback")
	t.Cmp(s.DayStatus(domain.WeekDayMonday), domain.DayStatusPending)
	t.Cmp(s.DayStatus(domain.WeekDayTuesday), domain.DayStatusConfirmed)
}

func TestBothWritesFail(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	b.saveErr[domain.WeekDaySaturday] = errors.New("timeout")
	b.saveErr[domain.WeekDaySunday] = domain.ErrNotInitialized
	s := newTestStore(tt, b, Options{})

	err := s.UpdateSlots(context.Background(), domain.WeekDaySaturday, []domain.TimeSlot{slot("23:00", "01:00")})
	t.Cmp(err, td.ErrorIs(domain.ErrWriteFailed))
	t.Cmp(err, td.ErrorIs(domain.ErrNotInitialized))
	t.Contains(err.Error(), "saturday")
	t.Contains(err.Error(), "sunday")
}

func TestConfirmationTimeout(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(false)
	s := newTestStore(tt, b, Options{ConfirmTimeout: 50 * time.Millisecond})

	started := time.Now()
	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, []domain.TimeSlot{slot("09:00", "10:00")}))
	t.True(time.Since(started) >= 50*time.Millisecond, "waited for confirmation")
	t.Cmp(s.DayStatus(domain.WeekDayMonday), domain.DayStatusPending)

	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "09:00-10:00"})
	require.Eventually(tt, func() bool {
		return s.DayStatus(domain.WeekDayMonday) == domain.DayStatusConfirmed
	}, time.Second, time.Millisecond)
}

func TestConfirmationWaitStopsOnContext(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(false)
	s := newTestStore(tt, b, Options{ConfirmTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	t.CmpNoError(s.UpdateSlots(ctx, domain.WeekDayMonday, []domain.TimeSlot{slot("09:00", "10:00")}))
	t.Cmp(b.value(domain.WeekDayMonday), "09:00-10:00")
}

func TestStaleEchoIgnored(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(false)
	s := newTestStore(tt, b, Options{ConfirmTimeout: 10 * time.Millisecond})

	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, []domain.TimeSlot{slot("09:00", "10:00")}))
	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, []domain.TimeSlot{slot("10:00", "11:00")}))
	t.Cmp(pendingCount(s, domain.WeekDayMonday), 2)

	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "09:00-10:00"})
	require.Eventually(tt, func() bool {
		return pendingCount(s, domain.WeekDayMonday) == 1
	}, time.Second, time.Millisecond)

	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("10:00", "11:00")}, "older echo does not revert")
	t.Cmp(s.DayStatus(domain.WeekDayMonday), domain.DayStatusPending)

	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "10:00-11:00"})
	require.Eventually(tt, func() bool {
		return s.DayStatus(domain.WeekDayMonday) == domain.DayStatusConfirmed
	}, time.Second, time.Millisecond)
	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("10:00", "11:00")})
}

func TestLateEchoOfOlderWriteIgnored(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(false)
	s := newTestStore(tt, b, Options{ConfirmTimeout: 10 * time.Millisecond, PendingTTL: time.Minute})

	base := time.Now()
	var offset atomic.Int64
	s.now = func() time.Time { return base.Add(time.Duration(offset.Load())) }

	var (
		mu         sync.Mutex
		mondayPubs int
	)
	s.Subscribe("test", func(day domain.WeekDay, _ []domain.TimeSlot) {
		if day == domain.WeekDayMonday {
			mu.Lock()
			mondayPubs++
			mu.Unlock()
		}
	})
	published := func() int {
		mu.Lock()
		defer mu.Unlock()
		return mondayPubs
	}

	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, []domain.TimeSlot{slot("09:00", "10:00")}))
	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, []domain.TimeSlot{slot("10:00", "11:00")}))
	t.Cmp(published(), 2)

	// Эхо новой записи приходит раньше эха старой
	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "10:00-11:00"})
	require.Eventually(tt, func() bool {
		return s.DayStatus(domain.WeekDayMonday) == domain.DayStatusConfirmed
	}, time.Second, time.Millisecond)

	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "09:00-10:00"})
	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "09:00-10:00"})
	b.Notify(domain.StateChange{Day: domain.WeekDayWednesday, Value: "07:00-08:00"})
	require.Eventually(tt, func() bool {
		return len(s.GetSlots(domain.WeekDayWednesday)) == 1
	}, time.Second, time.Millisecond)

	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("10:00", "11:00")}, "newer write kept")
	t.Cmp(s.DayStatus(domain.WeekDayMonday), domain.DayStatusConfirmed)
	t.Cmp(b.value(domain.WeekDayMonday), "10:00-11:00")
	t.Cmp(published(), 2, "late echo is not published")

	// После PendingTTL то же значение считается внешней записью
	offset.Store(int64(2 * time.Minute))
	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "09:00-10:00"})
	require.Eventually(tt, func() bool {
		slots := s.GetSlots(domain.WeekDayMonday)
		return len(slots) == 1 && slots[0] == slot("09:00", "10:00")
	}, time.Second, time.Millisecond)
	t.Cmp(published(), 3)
}

func TestPendingWritesExpire(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(false)
	s := newTestStore(tt, b, Options{ConfirmTimeout: time.Millisecond, PendingTTL: time.Minute})

	now := time.Now()
	s.now = func() time.Time { return now }

	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, []domain.TimeSlot{slot("09:00", "10:00")}))
	t.Cmp(pendingCount(s, domain.WeekDayMonday), 1)

	now = now.Add(2 * time.Minute)
	t.Cmp(s.DayStatus(domain.WeekDayMonday), domain.DayStatusPending, "lost write stays unconfirmed")
	t.Cmp(pendingCount(s, domain.WeekDayMonday), 0)

	// Эхо потерянной записи выглядит как внешняя запись того же значения
	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "09:00-10:00"})
	require.Eventually(tt, func() bool {
		return s.DayStatus(domain.WeekDayMonday) == domain.DayStatusConfirmed
	}, time.Second, time.Millisecond)
}

func TestExternalWriteReconciled(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	var mu sync.Mutex
	published := map[domain.WeekDay]int{}
	s.Subscribe("test", func(day domain.WeekDay, _ []domain.TimeSlot) {
		mu.Lock()
		published[day]++
		mu.Unlock()
	})

	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "10:00-11:00;10:30-12:00;bad"})
	require.Eventually(tt, func() bool {
		return len(s.GetSlots(domain.WeekDayMonday)) == 1
	}, time.Second, time.Millisecond)
	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("10:00", "12:00")}, "external value merged")

	// Дубликат и равнозначное значение не публикуются повторно
	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "10:00-11:00;10:30-12:00;bad"})
	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "10:30-12:00;10:00-11:00"})
	b.Notify(domain.StateChange{Day: domain.WeekDayTuesday, Value: "07:00-08:00"})
	require.Eventually(tt, func() bool {
		return len(s.GetSlots(domain.WeekDayTuesday)) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	t.Cmp(published[domain.WeekDayMonday], 1)
	t.Cmp(published[domain.WeekDayTuesday], 1)
	t.Cmp(s.DayStatus(domain.WeekDayMonday), domain.DayStatusConfirmed)
}

func TestExternalWriteOverridesPending(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(false)
	s := newTestStore(tt, b, Options{ConfirmTimeout: time.Millisecond})

	t.CmpNoError(s.UpdateSlots(context.Background(), domain.WeekDayMonday, []domain.TimeSlot{slot("09:00", "10:00")}))

	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "15:00-16:00"})
	require.Eventually(tt, func() bool {
		return s.DayStatus(domain.WeekDayMonday) == domain.DayStatusConfirmed
	}, time.Second, time.Millisecond)
	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{slot("15:00", "16:00")}, "last writer wins")
}

func TestApplyEdit(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})
	ctx := context.Background()

	add := func(start, end string) domain.SlotEdit {
		sl := slot(start, end)
		return domain.SlotEdit{Kind: domain.SlotEditKindAdd, Day: domain.WeekDayWednesday, Slot: &sl}
	}

	t.CmpNoError(s.ApplyEdit(ctx, add("09:00", "10:00")))
	t.CmpNoError(s.ApplyEdit(ctx, add("10:00", "11:00")))
	t.Cmp(s.GetSlots(domain.WeekDayWednesday), []domain.TimeSlot{slot("09:00", "11:00")})

	oldSlot, newSlot := slot("09:00", "11:00"), slot("13:00", "14:00")
	t.CmpNoError(s.ApplyEdit(ctx, domain.SlotEdit{
		Kind: domain.SlotEditKindEdit, Day: domain.WeekDayWednesday, OldSlot: &oldSlot, NewSlot: &newSlot,
	}))
	t.Cmp(s.GetSlots(domain.WeekDayWednesday), []domain.TimeSlot{slot("13:00", "14:00")})
	t.Cmp(b.value(domain.WeekDayWednesday), "13:00-14:00")

	t.CmpNoError(s.ApplyEdit(ctx, domain.SlotEdit{
		Kind: domain.SlotEditKindDelete, Day: domain.WeekDayWednesday, Slot: &newSlot,
	}))
	t.Cmp(s.GetSlots(domain.WeekDayWednesday), []domain.TimeSlot{})

	err := s.ApplyEdit(ctx, domain.SlotEdit{
		Kind: domain.SlotEditKindDelete, Day: domain.WeekDayWednesday, Slot: &newSlot,
	})
	t.Cmp(err, td.ErrorIs(domain.ErrSlotNotFound))

	t.Cmp(s.ApplyEdit(ctx, add("12:00", "12:00")), td.ErrorIs(domain.ErrInvalidSlot))
	t.Cmp(s.ApplyEdit(ctx, domain.SlotEdit{Kind: domain.SlotEditKindAdd, Day: "holiday"}),
		td.ErrorIs(domain.ErrUnknownDay))
}

func TestIsActiveAt(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	t.CmpNoError(s.UpdateLocalState(domain.WeekDayFriday, []domain.TimeSlot{slot("09:00", "17:00")}))
	t.CmpNoError(s.UpdateLocalState(domain.WeekDaySunday, []domain.TimeSlot{slot("22:00", "02:00")}))

	at := func(day, hour, minute int) time.Time {
		return time.Date(2024, time.May, day, hour, minute, 30, 0, time.UTC)
	}

	t.True(s.IsActiveAt(at(3, 10, 30)), "friday inside")
	t.False(s.IsActiveAt(at(3, 17, 0)), "friday end is exclusive")
	t.False(s.IsActiveAt(at(4, 10, 30)), "saturday empty")
	t.True(s.IsActiveAt(at(5, 23, 59)), "sunday last minute")
	t.True(s.IsActiveAt(at(6, 1, 0)), "monday carries the wrap")
	t.False(s.IsActiveAt(at(6, 2, 0)))
}

func TestSubscribeSchedule(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	var last domain.DaySchedule
	unsubscribe := s.SubscribeSchedule("test", func(schedule domain.DaySchedule) {
		last = schedule
	})

	t.CmpNoError(s.UpdateLocalState(domain.WeekDayMonday, []domain.TimeSlot{slot("23:00", "01:00")}))
	t.Len(last, 7)
	t.Cmp(last[domain.WeekDayMonday], []domain.TimeSlot{slot("23:00", "23:59")})
	t.Cmp(last[domain.WeekDayTuesday], []domain.TimeSlot{slot("00:00", "01:00")})

	unsubscribe()
	t.CmpNoError(s.UpdateLocalState(domain.WeekDayMonday, nil))
	t.Cmp(last[domain.WeekDayMonday], []domain.TimeSlot{slot("23:00", "23:59")})
}

func TestUpdateRejectsBadInput(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	s := newTestStore(tt, b, Options{})

	t.Cmp(s.UpdateSlots(context.Background(), "someday", nil), td.ErrorIs(domain.ErrUnknownDay))
	t.Cmp(s.UpdateLocalState(domain.WeekDayMonday, []domain.TimeSlot{{Start: 0, End: 1440}}),
		td.ErrorIs(domain.ErrInvalidSlot))
}

func TestDispose(tt *testing.T) {
	t := td.NewT(tt)

	b := newFakeBackend(true)
	log := logger.NewZapLoggerFrom(zap.NewNop())
	sm := state_manager.NewStateManager(log)
	s := NewScheduleStore(b, nil, sm, log, Options{})

	delivered := 0
	s.Subscribe("test", func(domain.WeekDay, []domain.TimeSlot) { delivered++ })

	s.Dispose()
	t.CmpNotPanic(s.Dispose)

	t.Cmp(sm.SubscriberCount(), 0)
	t.Cmp(s.Initialize(context.Background()), td.ErrorIs(domain.ErrStoreDisposed))
	t.Cmp(s.UpdateSlots(context.Background(), domain.WeekDayMonday, nil), td.ErrorIs(domain.ErrStoreDisposed))

	b.Notify(domain.StateChange{Day: domain.WeekDayMonday, Value: "09:00-10:00"})
	time.Sleep(10 * time.Millisecond)
	t.Cmp(s.GetSlots(domain.WeekDayMonday), []domain.TimeSlot{})
	t.Cmp(delivered, 0)
}

func TestDecodedValuesCached(tt *testing.T) {
	t := td.NewT(tt)

	cfg := &config.Config{}
	cfg.Cache.Enabled = true
	cfg.Cache.Size = 16

	log := logger.NewZapLoggerFrom(zap.NewNop())
	lru, err := cache.NewLRUCacheAdapter(cfg, log)
	t.Require().CmpNoError(err)

	b := newFakeBackend(true)
	b.values[domain.WeekDayMonday] = "09:00-10:00"
	s := NewScheduleStore(b, lru, state_manager.NewStateManager(log), log, Options{})
	tt.Cleanup(s.Dispose)

	t.Require().CmpNoError(s.Initialize(context.Background()))
	t.Cmp(lru.Stats(), cache.Stats{Size: 2, Hits: 5, Misses: 2}, "six empty days share one entry")

	b.Notify(domain.StateChange{Day: domain.WeekDayTuesday, Value: "09:00-10:00"})
	require.Eventually(tt, func() bool {
		return len(s.GetSlots(domain.WeekDayTuesday)) == 1
	}, time.Second, 5*time.Millisecond)
	t.Cmp(lru.Stats().Hits, int64(6))

	s.Dispose()
	t.Cmp(lru.Stats().Size, 0)
}

func TestMalformedValuesNotCached(tt *testing.T) {
	t := td.NewT(tt)

	cfg := &config.Config{}
	cfg.Cache.Enabled = true
	cfg.Cache.Size = 16

	core, logs := observer.New(zapcore.WarnLevel)
	log := logger.NewZapLoggerFrom(zap.New(core))
	lru, err := cache.NewLRUCacheAdapter(cfg, log)
	t.Require().CmpNoError(err)

	b := newFakeBackend(true)
	b.values[domain.WeekDayMonday] = "09:00-10:00;garbage"
	b.values[domain.WeekDayTuesday] = "09:00-10:00;garbage"
	s := NewScheduleStore(b, lru, state_manager.NewStateManager(log), log, Options{})
	tt.Cleanup(s.Dispose)

	t.Require().CmpNoError(s.Initialize(context.Background()))

	t.Cmp(s.GetSlots(domain.WeekDayTuesday), []domain.TimeSlot{slot("09:00", "10:00")})
	t.Cmp(logs.FilterMessage("schedule.decode.invalid_fragments").Len(), 2, "warned on every decode")
	t.Cmp(lru.Stats(), cache.Stats{Size: 1, Hits: 4, Misses: 3})
}
