package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"remindsync/internal/notification"
	"remindsync/internal/reminder"
	"remindsync/internal/remindersync"
	logx "remindsync/pkg/logx"
)

type handlers struct {
	b   Backend
	log logx.Logger
}

type syncRequest struct {
	Reminders []reminder.Reminder  `json:"reminders"`
	Options   remindersync.Options `json:"options"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) permission(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"granted": h.b.EnsurePermissions(c.Request.Context())})
}

// setup takes an optional policy body; an empty body registers the default policy.
// The policy is registered once per process; later calls get 409.
func (h *handlers) setup(c *gin.Context) {
	p := notification.DefaultPolicy()
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy", "details": err.Error()})
			return
		}
	}
	if !h.b.Setup(p) {
		h.log.Debug("foreground policy already registered")
		c.JSON(http.StatusConflict, gin.H{"error": "notifications already set up", "applied": false})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) sync(c *gin.Context) {
	var input syncRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	if err := reminder.Validate(input.Reminders); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminders", "details": err.Error()})
		return
	}
	res := h.b.Synchronize(c.Request.Context(), input.Reminders, input.Options)
	c.JSON(http.StatusOK, res)
}

func (h *handlers) cancel(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reminder id required"})
		return
	}
	h.b.CancelReminder(c.Request.Context(), id)
	c.Status(http.StatusNoContent)
}

func (h *handlers) scheduled(c *gin.Context) {
	list := h.b.Scheduled(c.Request.Context())
	if list == nil {
		list = []notification.Scheduled{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *handlers) pending(c *gin.Context) {
	ids := h.b.PendingWebhooks()
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"reminderIds": ids})
}
