package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

// Search looks up committed documents. Messages still waiting for the next
// index commit are not visible yet.
func Search(index interfaces.MessageSearchIndex) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "Search")
		defer span.Finish()

		query := interfaces.SearchQuery{
			AccountID: c.Query("accountId"),
			Text:      c.Query("q"),
			Field:     interfaces.SearchField(c.DefaultQuery("field", string(interfaces.SearchFieldAny))),
		}
		if query.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
			return
		}
		switch query.Field {
		case interfaces.SearchFieldAny, interfaces.SearchFieldSubject, interfaces.SearchFieldBody, interfaces.SearchFieldFrom:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown search field " + string(query.Field)})
			return
		}
		if limit := c.Query("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			query.Limit = n
		}

		docs, err := index.Search(ctx, query)
		if err != nil {
			respondErr(c, span, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}
