package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/mailfleet/tokenstack/dto"
	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/enum"
	tserrors "github.com/mailfleet/tokenstack/internal/errors"
	"github.com/mailfleet/tokenstack/internal/tracing"
	"github.com/mailfleet/tokenstack/services/history"
	"github.com/mailfleet/tokenstack/services/refresher"
)

// StartRun launches a refresh batch over all active accounts.
func StartRun(refresherService *refresher.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "StartRun", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		resp, err := refresherService.StartFullRun(ctx, enum.AttemptManual)
		if err != nil {
			tracing.TraceErr(span, err)
			if errors.Is(err, tserrors.ErrRunInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, resp)
	}
}

// StartRetryRun launches a refresh batch over currently failing accounts.
func StartRetryRun(refresherService *refresher.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "StartRetryRun", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		resp, err := refresherService.StartRetryRun(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, tserrors.ErrRunInProgress):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, tserrors.ErrNoFailingAccounts):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusAccepted, resp)
	}
}

// RefreshAccount refreshes one account synchronously.
func RefreshAccount(refresherService *refresher.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "RefreshAccount", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagEntity(span, id)

		kind := enum.AttemptManual
		if raw := c.Query("kind"); raw != "" {
			parsed, ok := enum.ParseAttemptKind(raw)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt kind"})
				return
			}
			kind = parsed
		}

		outcome, err := refresherService.RefreshOne(ctx, id, kind)
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, tserrors.ErrAccountNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, tserrors.ErrRunInProgress):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, dto.RefreshOutcomeResponse{
			AccountID:    outcome.AccountID,
			EmailAddress: outcome.EmailAddress,
			Outcome:      outcome.Outcome.String(),
			Error:        outcome.ErrorDetail,
		})
	}
}

// StreamRunProgress streams the live progress feed of the current run over
// SSE. The stream ends with the run's terminal event; disconnecting never
// cancels the run itself.
func StreamRunProgress(refresherService *refresher.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, events := refresherService.Hub().Subscribe()
		defer refresherService.Hub().Unsubscribe(id)

		// Subscribe before checking run state: a run observed as active here
		// cannot emit its terminal event before this subscriber is attached.
		running, _, _ := refresherService.Status()
		if !running {
			c.Status(http.StatusNoContent)
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		clientGone := c.Request.Context().Done()
		c.Stream(func(w io.Writer) bool {
			select {
			case <-clientGone:
				return false
			case event, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent("progress", event)
				return !event.Done
			}
		})
	}
}

// RefreshStats aggregates current account health and run state.
func RefreshStats(refresherService *refresher.Service, historyService *history.Service, accounts interfaces.AccountRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "RefreshStats", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		totalActive, err := accounts.CountActive(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		successCount, err := accounts.CountActiveByStatus(ctx, enum.RefreshStatusSuccess)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		failedCount, err := accounts.CountActiveByStatus(ctx, enum.RefreshStatusFailed)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := dto.RefreshStatsResponse{
			TotalActive:    totalActive,
			CurrentSuccess: successCount,
			CurrentFailed:  failedCount,
		}

		running, current, last := refresherService.Status()
		resp.RunInProgress = running
		if current != nil {
			resp.CurrentRunID = current.RunID
			resp.CurrentRunTotal = current.Total
		}
		if last != nil {
			resp.LastBatchRunAt = &last.FinishedAt
		} else {
			// Engine state is lost on restart; the ledger is the fallback
			if at, lerr := historyService.LatestEntryTime(ctx); lerr == nil {
				resp.LastBatchRunAt = at
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
