package ingest

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/models"
)

var igUsernameRe = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("igusername", func(fl validator.FieldLevel) bool {
			return igUsernameRe.MatchString(strings.ToLower(fl.Field().String()))
		})
	}
}

type createModelRequest struct {
	WorkspaceId string  `json:"workspaceId" binding:"required,uuid"`
	Username    string  `json:"username" binding:"required,igusername"`
	DisplayName *string `json:"displayName"`
}

// CreateModelHandler registers a new tracked account in pending state.
// Tracking starts only once the account is enabled.
func CreateModelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createModelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "workspaceId and a valid username are required"})
			return
		}
		wid, err := uuid.Parse(req.WorkspaceId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "workspaceId must be a uuid"})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()
		if _, err := models.GetWorkspaceById(ctx, db, wid); err != nil {
			if IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		model := models.Model{
			WorkspaceId: wid,
			Username:    strings.ToLower(strings.TrimSpace(req.Username)),
			DisplayName: req.DisplayName,
			Status:      models.ModelStatusPending,
		}
		if err := db.WithContext(ctx).Create(&model).Error; err != nil {
			if models.IsDuplicateKeyError(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "username already tracked in this workspace"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, model)
	}
}

// ProcessInboxHandler triggers one drain run. Cloud Scheduler calls this;
// it is also safe to call by hand.
func ProcessInboxHandler(processor *Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := processor.Drain(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type modelLifecycleRequest struct {
	ModelId string `json:"modelId" binding:"required"`
}

func EnableModelHandler(lifecycle *Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req modelLifecycleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "modelId is required"})
			return
		}
		modelId, err := uuid.Parse(req.ModelId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "modelId must be a uuid"})
			return
		}

		err = lifecycle.Enable(c.Request.Context(), modelId)
		if err != nil {
			switch {
			case IsNotFound(err):
				c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
			case errors.Is(err, ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, ErrProviderSubmission):
				c.JSON(http.StatusBadGateway, gin.H{"error": "scrape submission failed"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"started": true})
	}
}

func DisableModelHandler(lifecycle *Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req modelLifecycleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "modelId is required"})
			return
		}
		modelId, err := uuid.Parse(req.ModelId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "modelId must be a uuid"})
			return
		}

		err = lifecycle.Disable(c.Request.Context(), modelId)
		if err != nil {
			switch {
			case IsNotFound(err):
				c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
			case errors.Is(err, ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"disabled": true})
	}
}

func ScheduleScrapeHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := scheduler.Run(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type logEventRequest struct {
	Event       string                 `json:"event" binding:"required"`
	Level       string                 `json:"level" binding:"omitempty,oneof=info warn error"`
	Context     map[string]interface{} `json:"context"`
	Page        string                 `json:"page"`
	WorkspaceId string                 `json:"workspaceId" binding:"omitempty,uuid"`
}

// LogEventHandler ingests client-side audit events. Request metadata is
// taken from the connection, not the body.
func LogEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req logEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event is required"})
			return
		}

		entry := &models.EventLog{
			Event:     req.Event,
			Level:     models.EventLevel(req.Level),
			Page:      req.Page,
			UserAgent: c.Request.UserAgent(),
			Ip:        c.ClientIP(),
		}
		if req.WorkspaceId != "" {
			if wid, err := uuid.Parse(req.WorkspaceId); err == nil {
				entry.WorkspaceId = &wid
			}
		}
		if err := entry.SetContext(req.Context); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "context must be JSON-serializable"})
			return
		}

		if err := models.InsertEventLog(c.Request.Context(), config.GetDB(), entry); err != nil {
			config.LogError(config.GetLogger(), "ingest", "LogEventHandler", "insert event log", req.Event, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logged": true})
	}
}
