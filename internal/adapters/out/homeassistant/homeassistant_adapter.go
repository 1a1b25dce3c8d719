package homeassistant

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/backend"
	"github.com/suchimauz/weekly-schedule-sync/internal/config"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/in"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

// Состояния, которые Home Assistant отдает для сущности без значения
var emptyStates = map[string]bool{
	"unknown":     true,
	"unavailable": true,
}

type entityState struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

type setValueRequest struct {
	EntityID string `json:"entity_id"`
	Value    string `json:"value"`
}

// Adapter хранит расписание дня в сущности input_text Home Assistant.
// Уведомления об изменениях приходят через HandleStateChanged из шины событий.
type Adapter struct {
	*backend.Notifier

	client   *http.Client
	baseURL  string
	token    string
	entities backend.EntityMap
	limiter  *rate.Limiter
	logger   out.LoggerPort
}

var (
	_ out.BackendPort       = (*Adapter)(nil)
	_ in.StateChangeHandler = (*Adapter)(nil)
)

func NewAdapter(cfg *config.Config, entities map[domain.WeekDay]string, logger out.LoggerPort) *Adapter {
	limit := rate.Inf
	if cfg.HomeAssistant.RateLimit > 0 {
		limit = rate.Limit(cfg.HomeAssistant.RateLimit)
	}

	return &Adapter{
		Notifier: backend.NewNotifier(),
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(cfg.HomeAssistant.URL, "/"),
		token:    cfg.HomeAssistant.Token,
		entities: backend.NewEntityMap(entities),
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.WithModule("HomeAssistantAdapter"),
	}
}

func (a *Adapter) LoadState(ctx context.Context, day domain.WeekDay) (string, error) {
	entityID, err := a.entity(day)
	if err != nil {
		return "", err
	}

	a.logger.Debug("homeassistant.state.fetch", out.LogFields{
		"day":      day,
		"entityId": entityID,
	})

	url := fmt.Sprintf("%s/api/states/%s", a.baseURL, nurl.PathEscape(entityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("homeassistant.state.fetch: %w", err)
	}
	a.authorize(req)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("homeassistant.state.fetch_failed", out.LogFields{
			"entityId": entityID,
			"error":    err.Error(),
		})
		return "", fmt.Errorf("homeassistant.state.fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Error("homeassistant.state.fetch_failed", out.LogFields{
			"entityId": entityID,
			"status":   resp.StatusCode,
		})
		return "", fmt.Errorf("homeassistant.state.fetch %s: unexpected status code: %d", entityID, resp.StatusCode)
	}

	var state entityState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		a.logger.Error("homeassistant.state.decode_response_failed", out.LogFields{
			"entityId": entityID,
			"error":    err.Error(),
		})
		return "", fmt.Errorf("homeassistant.state.decode: %w", err)
	}

	return normalizeState(state.State), nil
}

func (a *Adapter) SaveState(ctx context.Context, day domain.WeekDay, value string) error {
	entityID, err := a.entity(day)
	if err != nil {
		return err
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailed, entityID, err)
	}

	body, err := json.Marshal(setValueRequest{EntityID: entityID, Value: value})
	if err != nil {
		return fmt.Errorf("homeassistant.set_value.encode: %w", err)
	}

	url := fmt.Sprintf("%s/api/services/input_text/set_value", a.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("homeassistant.set_value: %w", err)
	}
	a.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("homeassistant.set_value.failed", out.LogFields{
			"entityId": entityID,
			"error":    err.Error(),
		})
		return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailed, entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.logger.Error("homeassistant.set_value.failed", out.LogFields{
			"entityId": entityID,
			"status":   resp.StatusCode,
			"response": string(message),
		})
		return fmt.Errorf("%w: %s: unexpected status code: %d", domain.ErrWriteFailed, entityID, resp.StatusCode)
	}

	a.logger.Debug("homeassistant.set_value.success", out.LogFields{
		"day":      day,
		"entityId": entityID,
		"value":    value,
	})
	return nil
}

// HandleStateChanged принимает событие state_changed.
// События чужих сущностей и состояния unknown/unavailable игнорируются.
func (a *Adapter) HandleStateChanged(ctx context.Context, entityID string, value string) error {
	day, ok := a.entities.Day(entityID)
	if !ok {
		a.logger.Debug("homeassistant.state_changed.skipped", out.LogFields{
			"entityId": entityID,
		})
		return nil
	}

	if emptyStates[value] {
		a.logger.Debug("homeassistant.state_changed.empty", out.LogFields{
			"day":   day,
			"state": value,
		})
		return nil
	}

	a.logger.Debug("homeassistant.state_changed", out.LogFields{
		"day":   day,
		"value": value,
	})
	a.Notify(domain.StateChange{Day: day, Value: value})
	return nil
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

func (a *Adapter) authorize(req *http.Request) {
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
}

func normalizeState(state string) string {
	if emptyStates[state] {
		return ""
	}
	return state
}
