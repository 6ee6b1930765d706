package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailfleet/tokenstack/dto"
	"github.com/mailfleet/tokenstack/internal/tracing"
	"github.com/mailfleet/tokenstack/services/accounts"
)

// ImportAccounts bulk-loads credentials from the line-based text format.
func ImportAccounts(accountsService *accounts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ImportAccounts", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req dto.ImportAccountsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := accountsService.Import(ctx, &req)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// ExportAccounts downloads all active credentials in the same line format
// the importer accepts, with current refresh secrets.
func ExportAccounts(accountsService *accounts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ExportAccounts", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		text, err := accountsService.Export(ctx, c.Query("group_id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Disposition", `attachment; filename="accounts.txt"`)
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
	}
}
