package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booksync/internal/auth"
	auditrepo "github.com/mrlokans/booksync/internal/database/audit"
	"github.com/mrlokans/booksync/internal/entities"
)

type AuditController struct {
	log AuditLog
}

func NewAuditController(log AuditLog) *AuditController {
	return &AuditController{log: log}
}

// GetAuditEvents returns the caller's sync events, newest first.
// GET /api/audit?type=sync&book_id=b1&page=1&limit=25
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	page := intQuery(c, "page", 1, 10000)
	limit := intQuery(c, "limit", 25, 100)

	filter := auditrepo.Filter{
		UserID:    auth.GetUserID(c),
		BookID:    c.Query("book_id"),
		EventType: entities.AuditEventType(c.Query("type")),
	}

	events, total, err := ac.log.GetEvents(filter, limit, (page-1)*limit)
	if err != nil {
		respondError(c, err, "load audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, gin.H{
		"events":       events,
		"page":         page,
		"limit":        limit,
		"total_pages":  totalPages,
		"total_events": total,
	})
}
