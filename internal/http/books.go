package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booksync/internal/auth"
	"github.com/mrlokans/booksync/internal/entities"
	"github.com/mrlokans/booksync/internal/tasks"
)

type BooksController struct {
	books BookService
	tasks TaskQueue
}

func NewBooksController(books BookService, queue TaskQueue) *BooksController {
	return &BooksController{
		books: books,
		tasks: queue,
	}
}

// GetBooks handles GET /api/books?refresh=true
func (bc *BooksController) GetBooks(c *gin.Context) {
	books, err := bc.books.LoadBookList(requestContext(c), auth.GetUserID(c), boolQuery(c, "refresh"))
	if err != nil {
		respondError(c, err, "load book list")
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}

// GetBook handles GET /api/books/:id?refresh=true
func (bc *BooksController) GetBook(c *gin.Context) {
	book, err := bc.books.LoadBookContent(requestContext(c), c.Param("id"), boolQuery(c, "refresh"))
	if err != nil {
		respondError(c, err, "load book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// RefreshBook handles POST /api/books/:id/refresh
func (bc *BooksController) RefreshBook(c *gin.Context) {
	book, err := bc.books.RefreshBook(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "refresh book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// DeleteBook handles DELETE /api/books/:id
func (bc *BooksController) DeleteBook(c *gin.Context) {
	if err := bc.books.DeleteBook(requestContext(c), c.Param("id")); err != nil {
		respondError(c, err, "delete book")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book deleted", "id": c.Param("id")})
}

// CacheBook handles PUT /api/books/:id/cache with a full book as body.
func (bc *BooksController) CacheBook(c *gin.Context) {
	var book entities.FullBookData
	if err := c.ShouldBindJSON(&book); err != nil {
		respondBadRequest(c, "invalid book payload: "+err.Error())
		return
	}

	if err := bc.books.CacheBookData(requestContext(c), c.Param("id"), &book); err != nil {
		respondError(c, err, "cache book")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book cached", "id": c.Param("id")})
}

// SyncBook handles POST /api/books/:id/sync. With ?async=true the sync is
// queued and the task id returned.
func (bc *BooksController) SyncBook(c *gin.Context) {
	bookID := c.Param("id")

	if boolQuery(c, "async") {
		if bc.tasks == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "task queue is disabled"})
			return
		}
		taskID, err := bc.tasks.Enqueue(tasks.SyncBookTask{UserID: auth.GetUserID(c), BookID: bookID})
		if err != nil {
			respondError(c, err, "enqueue book sync")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "status": "pending"})
		return
	}

	result := bc.books.SyncBookToBackend(requestContext(c), bookID)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckAccess handles GET /api/books/:id/access
func (bc *BooksController) CheckAccess(c *gin.Context) {
	ok, err := bc.books.HasBookAccess(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "check book access")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "access": ok})
}

// GetPublicBook handles GET /api/public/:link
func (bc *BooksController) GetPublicBook(c *gin.Context) {
	book, err := bc.books.GetPublicBook(c.Request.Context(), c.Param("link"))
	if err != nil {
		respondError(c, err, "load public book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// SearchPublicBooks handles GET /api/search/public?q=&tags=a,b&limit=
func (bc *BooksController) SearchPublicBooks(c *gin.Context) {
	var tags []string
	for _, tag := range strings.Split(c.Query("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	books, err := bc.books.SearchPublicBooks(c.Request.Context(), strings.TrimSpace(c.Query("q")), tags, intQuery(c, "limit", 20, 100))
	if err != nil {
		respondError(c, err, "search public books")
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}
