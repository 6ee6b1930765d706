package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/mailfleet/tokenstack/dto"
	tserrors "github.com/mailfleet/tokenstack/internal/errors"
	"github.com/mailfleet/tokenstack/internal/tracing"
	"github.com/mailfleet/tokenstack/services/scheduler"
)

// GetSchedule returns the persisted scheduling policy.
func GetSchedule(schedulerService *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "GetSchedule", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		policy, err := schedulerService.GetPolicy(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, policy)
	}
}

// UpdateSchedule validates and persists policy changes. Invalid settings are
// rejected without touching the stored policy.
func UpdateSchedule(schedulerService *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "UpdateSchedule", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req dto.UpdateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		policy, err := schedulerService.UpdatePolicy(ctx, &req)
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, tserrors.ErrInvalidCronExpression),
				errors.Is(err, tserrors.ErrIntervalOutOfRange),
				errors.Is(err, tserrors.ErrInvalidScheduleMode):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, policy)
	}
}

// PreviewSchedule validates a cron expression and returns upcoming firings.
func PreviewSchedule(schedulerService *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "PreviewSchedule", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req dto.PreviewScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, schedulerService.Preview(&req))
	}
}
