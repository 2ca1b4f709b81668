package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/booksync/internal/auth"
	"github.com/mrlokans/booksync/internal/entities"
	"github.com/mrlokans/booksync/internal/tasks"
)

const sseKeepAlive = 25 * time.Second

type SyncController struct {
	sync  SyncService
	tasks TaskQueue
}

func NewSyncController(sync SyncService, queue TaskQueue) *SyncController {
	return &SyncController{
		sync:  sync,
		tasks: queue,
	}
}

// GetState handles GET /api/sync/state
func (sc *SyncController) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, sc.sync.LoadingState())
}

// GetStatus handles GET /api/sync/status
func (sc *SyncController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": sc.sync.Status(),
		"recent": sc.sync.RecentBooks(),
	})
}

// Events handles GET /api/sync/events, a server-sent stream of loading
// state snapshots. Snapshots are dropped while the client is behind.
func (sc *SyncController) Events(c *gin.Context) {
	updates := make(chan entities.LoadingState, 16)
	unsubscribe := sc.sync.Subscribe(func(state entities.LoadingState) {
		select {
		case updates <- state:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("state", sc.sync.LoadingState())
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-updates:
			c.SSEvent("state", state)
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
		}
		c.Writer.Flush()
	}
}

// SyncAll handles POST /api/sync/all (?async=true queues it)
func (sc *SyncController) SyncAll(c *gin.Context) {
	if boolQuery(c, "async") {
		sc.enqueue(c, tasks.SyncAllBooksTask{UserID: auth.GetUserID(c)})
		return
	}
	c.JSON(http.StatusOK, sc.sync.SyncAllUserBooks(requestContext(c)))
}

// LoadAll handles POST /api/sync/load-all
func (sc *SyncController) LoadAll(c *gin.Context) {
	c.JSON(http.StatusOK, sc.sync.LoadAllUserBooks(requestContext(c)))
}

// Reset handles POST /api/sync/reset. Every local key except the preserved
// settings is dropped and all books are loaded again.
func (sc *SyncController) Reset(c *gin.Context) {
	c.JSON(http.StatusOK, sc.sync.ResetAndReload(requestContext(c)))
}

// Background handles POST /api/sync/background. It is queued when a task
// queue is configured and runs inline otherwise.
func (sc *SyncController) Background(c *gin.Context) {
	userID := auth.GetUserID(c)
	if sc.tasks != nil {
		sc.enqueue(c, tasks.BackgroundSyncTask{UserID: userID})
		return
	}
	sc.sync.BackgroundSyncRecent(requestContext(c), userID)
	c.JSON(http.StatusOK, sc.sync.LoadingState())
}

type networkRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// SetNetwork handles POST /api/sync/network {"online": bool}
func (sc *SyncController) SetNetwork(c *gin.Context) {
	var req networkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "online flag is required")
		return
	}
	sc.sync.SetOnline(requestContext(c), *req.Online)
	c.JSON(http.StatusOK, sc.sync.Status())
}

// GetFailedMigrations handles GET /api/sync/failed-migrations
func (sc *SyncController) GetFailedMigrations(c *gin.Context) {
	c.JSON(http.StatusOK, sc.sync.FailedMigrationStats())
}

// ClearFailedMigrations handles DELETE /api/sync/failed-migrations
func (sc *SyncController) ClearFailedMigrations(c *gin.Context) {
	sc.sync.ClearFailedMigrations()
	c.JSON(http.StatusOK, sc.sync.FailedMigrationStats())
}

func (sc *SyncController) enqueue(c *gin.Context, task backlite.Task) {
	if sc.tasks == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "task queue is disabled"})
		return
	}
	taskID, err := sc.tasks.Enqueue(task)
	if err != nil {
		respondError(c, err, "enqueue "+task.Config().Name)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "status": "pending"})
}
