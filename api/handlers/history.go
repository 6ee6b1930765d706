package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailfleet/tokenstack/internal/tracing"
	"github.com/mailfleet/tokenstack/services/history"
)

const (
	defaultHistoryDays  = 180
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// ListHistory returns recent ledger entries, most recent first. Supports
// days, limit and failedOnly query parameters.
func ListHistory(historyService *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListHistory", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		days := queryInt(c, "days", defaultHistoryDays)
		limit := queryInt(c, "limit", defaultHistoryLimit)
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		failedOnly := c.Query("failed_only") == "true"

		cutoff := time.Now().AddDate(0, 0, -days)
		entries, err := historyService.ListSince(ctx, cutoff, limit, failedOnly)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
	}
}

// ListAccountHistory returns one account's ledger entries.
func ListAccountHistory(historyService *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListAccountHistory", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		accountID := c.Param("accountId")
		tracing.TagEntity(span, accountID)

		limit := queryInt(c, "limit", defaultHistoryLimit)
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		entries, err := historyService.ListByAccount(ctx, accountID, limit)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
	}
}

// ListFailingAccounts returns the latest entry of every account whose most
// recent refresh attempt failed.
func ListFailingAccounts(historyService *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListFailingAccounts", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		entries, err := historyService.ListFailedCurrent(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
	}
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
