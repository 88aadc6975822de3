package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/minutes/internal/intake"
	"github.com/zulandar/minutes/internal/meeting"
	"github.com/zulandar/minutes/internal/metrics"
	"github.com/zulandar/minutes/internal/models"
	"github.com/zulandar/minutes/internal/queue"
	"gorm.io/gorm"
)

// OwnerHeader carries the authenticated caller's id.
const OwnerHeader = "X-Owner-ID"

const (
	defaultRecent = 5
	ownerKey      = "owner_id"
)

// multipartSlack covers multipart framing around the audio part.
const multipartSlack = 1 << 20

// meetingResponse is the JSON shape of a meeting.
type meetingResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	Transcript  string    `json:"transcript"`
	Summary     *string   `json:"summary"`
	ActionItems []string  `json:"action_items"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResponse(m *models.Meeting) meetingResponse {
	items := make([]string, 0, len(m.ActionItems))
	for _, it := range m.ActionItems {
		items = append(items, it.Content)
	}
	return meetingResponse{
		ID:          m.ID,
		Title:       m.Title,
		Status:      m.Status,
		Transcript:  m.Transcription,
		Summary:     m.Summary,
		ActionItems: items,
		CreatedAt:   m.CreatedAt,
	}
}

func toResponses(ms []models.Meeting) []meetingResponse {
	out := make([]meetingResponse, 0, len(ms))
	for i := range ms {
		out = append(out, toResponse(&ms[i]))
	}
	return out
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth(opts.DB))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api", requireOwner())
	api.POST("/meetings", handleUpload(opts.Intake, opts.MaxUploadBytes))
	api.GET("/meetings", handleList(opts.DB))
	api.GET("/meetings/recent", handleRecent(opts.DB))
	api.GET("/meetings/:id", handleGet(opts.DB))
	api.DELETE("/meetings/:id", handleDelete(opts.Intake))
	api.POST("/meetings/:id/retry", handleRetry(opts.DB))
}

func requireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader(OwnerHeader)
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + OwnerHeader + " header"})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleUpload(svc *intake.Service, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartSlack)
		fh, err := c.FormFile("audio")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"audio\" is required"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()

		m, err := svc.Accept(c.Request.Context(), intake.Upload{
			OwnerID:  c.GetString(ownerKey),
			Filename: fh.Filename,
			Size:     fh.Size,
			Body:     f,
		})
		switch {
		case errors.Is(err, intake.ErrUnsupportedType):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		case errors.Is(err, intake.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusAccepted, toResponse(m))
		}
	}
}

func handleList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit", 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ms, err := meeting.List(db, c.GetString(ownerKey), meeting.ListFilters{
			Status: c.Query("status"),
			Limit:  limit,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toResponses(ms))
	}
}

func handleRecent(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := queryInt(c, "n", defaultRecent)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ms, err := meeting.Recent(db, c.GetString(ownerKey), n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toResponses(ms))
	}
}

func handleGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := meeting.Get(db, c.GetString(ownerKey), c.Param("id"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(m))
	}
}

func handleDelete(svc *intake.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.GetString(ownerKey), c.Param("id")); err != nil {
			writeLookupError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleRetry requeues a failed meeting.
func handleRetry(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := meeting.Get(db, c.GetString(ownerKey), c.Param("id"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		if m.Status != models.StatusFailed {
			c.JSON(http.StatusConflict, gin.H{"error": "only failed meetings can be retried", "status": m.Status})
			return
		}
		if _, err := queue.Enqueue(db, m.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, toResponse(m))
	}
}

func writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, meeting.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	s := c.Query(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
