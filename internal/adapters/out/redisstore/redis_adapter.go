package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/backend"
	"github.com/suchimauz/weekly-schedule-sync/internal/config"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

// Adapter хранит значение каждого дня в ключе с именем сущности.
// Каждая запись публикуется в канал, подписка на который доставляет изменения
// от всех экземпляров сервиса, включая собственные.
type Adapter struct {
	*backend.Notifier

	client   redis.UniversalClient
	channel  string
	entities backend.EntityMap
	logger   out.LoggerPort

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

var _ out.BackendPort = (*Adapter)(nil)

type changeMessage struct {
	Day   domain.WeekDay `json:"day"`
	Value string         `json:"value"`
}

func NewAdapter(cfg *config.Config, entities map[domain.WeekDay]string, logger out.LoggerPort) *Adapter {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return NewAdapterWithClient(client, cfg.Redis.Channel, entities, logger)
}

func NewAdapterWithClient(client redis.UniversalClient, channel string, entities map[domain.WeekDay]string, logger out.LoggerPort) *Adapter {
	return &Adapter{
		Notifier: backend.NewNotifier(),
		client:   client,
		channel:  channel,
		entities: backend.NewEntityMap(entities),
		logger:   logger.WithModule("RedisAdapter"),
	}
}

func (a *Adapter) LoadState(ctx context.Context, day domain.WeekDay) (string, error) {
	entityID, err := a.entity(day)
	if err != nil {
		return "", err
	}

	value, err := a.client.Get(ctx, entityID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		a.logger.Error("redis.state.fetch_failed", out.LogFields{
			"entityId": entityID,
			"error":    err.Error(),
		})
		return "", fmt.Errorf("redis.state.fetch %s: %w", entityID, err)
	}
	return value, nil
}

func (a *Adapter) SaveState(ctx context.Context, day domain.WeekDay, value string) error {
	entityID, err := a.entity(day)
	if err != nil {
		return err
	}

	payload, err := encodeChange(day, value)
	if err != nil {
		return fmt.Errorf("redis.state.encode: %w", err)
	}

	// Значение и уведомление уходят одной транзакцией
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entityID, value, 0)
		pipe.Publish(ctx, a.channel, payload)
		return nil
	})
	if err != nil {
		a.logger.Error("redis.state.save_failed", out.LogFields{
			"entityId": entityID,
			"error":    err.Error(),
		})
		return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailed, entityID, err)
	}

	a.logger.Debug("redis.state.saved", out.LogFields{
		"day":      day,
		"entityId": entityID,
		"value":    value,
	})
	return nil
}

// Start подписывается на канал изменений и раздает их подписчикам до Stop
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pubsub != nil {
		return nil
	}

	pubsub := a.client.Subscribe(ctx, a.channel)
	// Дожидаемся подтверждения подписки, чтобы не потерять первые сообщения
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis.subscribe %s: %w", a.channel, err)
	}

	a.pubsub = pubsub
	a.done = make(chan struct{})
	go a.listen(pubsub.Channel(), a.done)

	a.logger.Info("redis.subscribe.started", out.LogFields{
		"channel": a.channel,
	})
	return nil
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	pubsub, done := a.pubsub, a.done
	a.pubsub, a.done = nil, nil
	a.mu.Unlock()

	if pubsub == nil {
		return nil
	}

	err := pubsub.Close()
	<-done
	a.logger.Info("redis.subscribe.stopped", out.LogFields{
		"channel": a.channel,
	})
	return err
}

func (a *Adapter) Close() error {
	stopErr := a.Stop()
	return errors.Join(stopErr, a.client.Close())
}

func (a *Adapter) listen(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)

	for msg := range messages {
		a.handleMessage(msg.Payload)
	}
}

func (a *Adapter) handleMessage(payload string) {
	change, err := decodeChange(payload)
	if err != nil {
		a.logger.Warn("redis.message.invalid", out.LogFields{
			"payload": payload,
			"error":   err.Error(),
		})
		return
	}

	if _, ok := a.entities.Entity(change.Day); !ok {
		a.logger.Debug("redis.message.skipped", out.LogFields{
			"day": change.Day,
		})
		return
	}

	a.Notify(change)
}

func (a *Adapter) entity(day domain.WeekDay) (string, error) {
	if a.entities.IsEmpty() {
		return "", domain.ErrNotInitialized
	}
	entityID, ok := a.entities.Entity(day)
	if !ok {
		return "", fmt.Errorf("%w: no entity for %s", domain.ErrConfiguration, day)
	}
	return entityID, nil
}

func encodeChange(day domain.WeekDay, value string) (string, error) {
	data, err := json.Marshal(changeMessage{Day: day, Value: value})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeChange(payload string) (domain.StateChange, error) {
	var msg changeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return domain.StateChange{}, err
	}
	day, err := domain.ParseWeekDay(string(msg.Day))
	if err != nil {
		return domain.StateChange{}, err
	}
	return domain.StateChange{Day: day, Value: msg.Value}, nil
}
