package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suchimauz/weekly-schedule-sync/internal/config"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/in"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

const (
	setupAttempts     = 3
	setupRetryDelay   = 500 * time.Millisecond
	eventStateChanged = "state_changed"
)

// StateChangedListener получает события state_changed Home Assistant из RabbitMQ
// и передает их обработчику изменений хранилища.
type StateChangedListener struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler in.StateChangeHandler
	cfg     *config.Config
	logger  out.LoggerPort

	consumerWg sync.WaitGroup
	stopOnce   sync.Once
	cancel     chan struct{}
}

type entityState struct {
	State string `json:"state"`
}

type stateChangedData struct {
	EntityID string       `json:"entity_id"`
	NewState *entityState `json:"new_state"`
}

// Событие приходит либо целиком ({event_type, data}), либо только с data
type stateChangedMessage struct {
	EventType string            `json:"event_type"`
	Data      *stateChangedData `json:"data"`
	stateChangedData
}

func NewStateChangedListener(handler in.StateChangeHandler, cfg *config.Config, logger out.LoggerPort) (*StateChangedListener, error) {
	if !cfg.RabbitMQ.Enabled {
		logger.Info("rabbitmq.disabled", out.LogFields{
			"message": "RabbitMQ is disabled, listener will not be started",
		})
		return nil, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("rabbitmq.connect.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("rabbitmq.connect: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("rabbitmq.channel.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("rabbitmq.channel: %w", err)
	}

	return newListener(conn, channel, handler, cfg, logger), nil
}

func newListener(conn *amqp.Connection, channel *amqp.Channel, handler in.StateChangeHandler, cfg *config.Config, logger out.LoggerPort) *StateChangedListener {
	return &StateChangedListener{
		conn:    conn,
		channel: channel,
		handler: handler,
		cfg:     cfg,
		logger:  logger.WithModule("StateChangedListener"),
		cancel:  make(chan struct{}),
	}
}

func (l *StateChangedListener) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	exchangeName := l.cfg.RabbitMQ.Exchange
	queueName := l.cfg.RabbitMQ.Queue
	bindingKey := l.cfg.RabbitMQ.Bind

	err := l.retry("rabbitmq.exchange_declare", func() error {
		return l.channel.ExchangeDeclare(
			exchangeName, // имя обменника
			"topic",      // тип обменника
			true,         // durable
			false,        // auto-delete
			false,        // internal
			false,        // no-wait
			nil,          // аргументы
		)
	})
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchangeName, err)
	}

	var queue amqp.Queue
	err = l.retry("rabbitmq.queue_declare", func() error {
		var declareErr error
		queue, declareErr = l.channel.QueueDeclare(
			queueName,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		return declareErr
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	err = l.retry("rabbitmq.queue_bind", func() error {
		return l.channel.QueueBind(queue.Name, bindingKey, exchangeName, false, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queue.Name, err)
	}

	consumerID := fmt.Sprintf("schedule-sync-%s", uuid.NewString())
	var msgs <-chan amqp.Delivery
	err = l.retry("rabbitmq.consume", func() error {
		var consumeErr error
		msgs, consumeErr = l.channel.Consume(
			queue.Name,
			consumerID,
			false, // auto-ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,   // args
		)
		return consumeErr
	})
	if err != nil {
		return fmt.Errorf("failed to consume from queue %s: %w", queue.Name, err)
	}

	l.logger.Info("rabbitmq.queue.started", out.LogFields{
		"queue":      queue.Name,
		"binding":    bindingKey,
		"exchange":   exchangeName,
		"consumerID": consumerID,
	})

	l.consumerWg.Add(1)
	go l.consume(ctx, msgs, queue.Name)

	return nil
}

func (l *StateChangedListener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}

	var err error
	l.stopOnce.Do(func() {
		close(l.cancel)
		l.consumerWg.Wait()

		if closeErr := l.channel.Close(); closeErr != nil {
			err = closeErr
			return
		}
		err = l.conn.Close()
	})
	return err
}

func (l *StateChangedListener) retry(event string, fn func() error) error {
	var err error
	for attempts := 0; attempts < setupAttempts; attempts++ {
		if err = fn(); err == nil {
			l.logger.Info(event+".success", nil)
			return nil
		}

		l.logger.Warn(event+".retry", out.LogFields{
			"attempt": attempts + 1,
			"error":   err.Error(),
		})
		time.Sleep(setupRetryDelay)
	}
	return err
}

func (l *StateChangedListener) consume(ctx context.Context, msgs <-chan amqp.Delivery, queueName string) {
	defer l.consumerWg.Done()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("rabbitmq.consumer.stopping_by_context", out.LogFields{
				"queue": queueName,
			})
			return
		case <-l.cancel:
			l.logger.Info("rabbitmq.consumer.stopping_by_cancel", out.LogFields{
				"queue": queueName,
			})
			return
		case msg, ok := <-msgs:
			if !ok {
				l.logger.Warn("rabbitmq.consumer.channel_closed", out.LogFields{
					"queue": queueName,
				})
				return
			}
			l.handleDelivery(ctx, msg)
		}
	}
}

// handleDelivery подтверждает сообщение после обработки.
// Ошибка обработчика возвращает сообщение в очередь, нечитаемое сообщение отбрасывается.
func (l *StateChangedListener) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	l.logger.Debug("rabbitmq.message.received", out.LogFields{
		"routingKey": msg.RoutingKey,
		"messageId":  msg.MessageId,
	})

	entityID, state, ok, err := parseStateChanged(msg.Body)
	if err != nil {
		l.logger.Warn("rabbitmq.message.invalid", out.LogFields{
			"routingKey": msg.RoutingKey,
			"body":       string(msg.Body),
			"error":      err.Error(),
		})
		l.ack(msg)
		return
	}
	if !ok {
		l.logger.Debug("rabbitmq.message.skipped", out.LogFields{
			"routingKey": msg.RoutingKey,
		})
		l.ack(msg)
		return
	}

	if err := l.handler.HandleStateChanged(ctx, entityID, state); err != nil {
		l.logger.Error("rabbitmq.process_message.failed", out.LogFields{
			"routingKey": msg.RoutingKey,
			"entityId":   entityID,
			"error":      err.Error(),
		})
		if err := msg.Nack(false, true); err != nil {
			l.logger.Error("rabbitmq.message.nack_failed", out.LogFields{
				"error": err.Error(),
			})
		}
		return
	}

	l.ack(msg)
}

func (l *StateChangedListener) ack(msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		l.logger.Error("rabbitmq.message.ack_failed", out.LogFields{
			"error": err.Error(),
		})
	}
}

// parseStateChanged возвращает ok=false для событий другого типа и удаленных сущностей
func parseStateChanged(body []byte) (entityID string, state string, ok bool, err error) {
	var msg stateChangedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", "", false, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if msg.EventType != "" && msg.EventType != eventStateChanged {
		return "", "", false, nil
	}

	data := msg.stateChangedData
	if msg.Data != nil {
		data = *msg.Data
	}

	if data.EntityID == "" {
		return "", "", false, fmt.Errorf("message has no entity_id")
	}
	if data.NewState == nil {
		return data.EntityID, "", false, nil
	}

	return data.EntityID, data.NewState.State, true, nil
}
