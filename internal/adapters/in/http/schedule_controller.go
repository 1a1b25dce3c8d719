package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/suchimauz/weekly-schedule-sync/internal/config"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/in"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
	"github.com/suchimauz/weekly-schedule-sync/internal/utils"
)

// Сколько событий SSE копится для медленного клиента до пропуска
const eventsBufferSize = 32

type ScheduleController struct {
	useCase  in.ScheduleUseCase
	cfg      *config.Config
	location *time.Location
	logger   out.LoggerPort
	now      func() time.Time
}

func NewScheduleController(useCase in.ScheduleUseCase, cfg *config.Config, logger out.LoggerPort) *ScheduleController {
	return &ScheduleController{
		useCase:  useCase,
		cfg:      cfg,
		location: utils.LoadLocation(cfg.App.Timezone),
		logger:   logger.WithModule("HttpController"),
		now:      time.Now,
	}
}

func (c *ScheduleController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.health)

	api := router.Group("/api/v1")
	api.Use(c.basicAuth())
	{
		api.GET("/schedule", c.getSchedule)
		api.GET("/schedule/active", c.isActive)
		api.GET("/schedule/events", c.events)
		api.GET("/schedule/:day", c.getDay)
		api.PUT("/schedule/:day", c.updateDay)
		api.POST("/schedule/:day/edits", c.applyEdit)
	}
}

type UpdateDayRequest struct {
	Slots []domain.TimeSlot `json:"slots"`
	// По умолчанию изменения сохраняются в хранилище
	Persist *bool `json:"persist"`
}

type DayResponse struct {
	Day    domain.WeekDay    `json:"day"`
	Slots  []domain.TimeSlot `json:"slots"`
	Status domain.DayStatus  `json:"status"`
	// Суммарная длительность слотов дня в минутах
	TotalMinutes int `json:"totalMinutes"`
}

type dayEvent struct {
	Day   domain.WeekDay    `json:"day"`
	Slots []domain.TimeSlot `json:"slots"`
}

func (c *ScheduleController) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": c.cfg.App.Version,
	})
}

func (c *ScheduleController) getSchedule(ctx *gin.Context) {
	schedule := c.useCase.GetAllSlots()
	statuses := make(map[domain.WeekDay]domain.DayStatus, len(domain.WeekDays))
	for _, day := range domain.WeekDays {
		statuses[day] = c.useCase.DayStatus(day)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"schedule": schedule,
		"status":   statuses,
	})
}

func (c *ScheduleController) getDay(ctx *gin.Context) {
	day, ok := c.parseDay(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, c.dayResponse(day))
}

func (c *ScheduleController) updateDay(ctx *gin.Context) {
	day, ok := c.parseDay(ctx)
	if !ok {
		return
	}

	var req UpdateDayRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	if req.Persist == nil || *req.Persist {
		err = c.useCase.UpdateSlots(ctx.Request.Context(), day, req.Slots)
	} else {
		err = c.useCase.UpdateLocalState(day, req.Slots)
	}
	c.respondUpdate(ctx, day, err)
}

func (c *ScheduleController) applyEdit(ctx *gin.Context) {
	day, ok := c.parseDay(ctx)
	if !ok {
		return
	}

	var edit domain.SlotEdit
	if err := ctx.ShouldBindJSON(&edit); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	edit.Day = day

	c.respondUpdate(ctx, day, c.useCase.ApplyEdit(ctx.Request.Context(), edit))
}

func (c *ScheduleController) isActive(ctx *gin.Context) {
	at := c.now().In(c.location)
	if raw := ctx.Query("at"); raw != "" {
		parsed, err := utils.ParseDate(raw, c.location)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid at format"})
			return
		}
		at = parsed
	}

	ctx.JSON(http.StatusOK, gin.H{
		"at":     at.Format(time.RFC3339),
		"day":    domain.WeekDayOf(at),
		"active": c.useCase.IsActiveAt(at),
	})
}

// events отдает поток SSE: сначала неделя целиком, затем каждое обновление дня
func (c *ScheduleController) events(ctx *gin.Context) {
	subscriberID := "sse-" + uuid.NewString()
	events := make(chan dayEvent, eventsBufferSize)

	unsubscribe := c.useCase.Subscribe(subscriberID, func(day domain.WeekDay, slots []domain.TimeSlot) {
		select {
		case events <- dayEvent{Day: day, Slots: slots}:
		default:
			c.logger.Warn("http.events.dropped", out.LogFields{
				"subscriberId": subscriberID,
				"day":          day,
			})
		}
	})
	defer unsubscribe()

	c.logger.Info("http.events.connected", out.LogFields{
		"subscriberId": subscriberID,
	})

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")

	ctx.SSEvent("schedule", c.useCase.GetAllSlots())
	ctx.Writer.Flush()

	done := ctx.Request.Context().Done()
	for {
		select {
		case <-done:
			c.logger.Info("http.events.disconnected", out.LogFields{
				"subscriberId": subscriberID,
			})
			return
		case event := <-events:
			ctx.SSEvent("day", event)
			ctx.Writer.Flush()
		}
	}
}

func (c *ScheduleController) parseDay(ctx *gin.Context) (domain.WeekDay, bool) {
	day, err := domain.ParseWeekDay(ctx.Param("day"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return day, true
}

func (c *ScheduleController) dayResponse(day domain.WeekDay) DayResponse {
	slots := c.useCase.GetSlots(day)

	var total time.Duration
	for _, slot := range slots {
		total += slot.Duration()
	}

	return DayResponse{
		Day:          day,
		Slots:        slots,
		Status:       c.useCase.DayStatus(day),
		TotalMinutes: int(total.Minutes()),
	}
}

// respondUpdate при ошибке записи отдает оптимистичное состояние вместе с ошибкой
func (c *ScheduleController) respondUpdate(ctx *gin.Context, day domain.WeekDay, err error) {
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, c.dayResponse(day))
	case errors.Is(err, domain.ErrWriteFailed):
		c.logger.Warn("http.update.write_failed", out.LogFields{
			"day":   day,
			"error": err.Error(),
		})
		ctx.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"day":   c.dayResponse(day),
		})
	case errors.Is(err, domain.ErrSlotNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidSlot), errors.Is(err, domain.ErrUnknownDay):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStoreDisposed):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (c *ScheduleController) basicAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username, password, hasAuth := ctx.Request.BasicAuth()
		if !hasAuth || !c.validClient(username, password) {
			ctx.Header("WWW-Authenticate", "Basic realm=Authorization Required")
			ctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		ctx.Next()
	}
}

func (c *ScheduleController) validClient(username, password string) bool {
	valid := false
	for _, client := range c.cfg.Auth.BasicClients {
		userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(client.Username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(client.Password)) == 1
		if userMatch && passMatch {
			valid = true
		}
	}
	return valid
}
