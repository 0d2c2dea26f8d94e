package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thechief/rememberd/internal/domain/prefs"
	"github.com/thechief/rememberd/internal/domain/progress"
	"github.com/thechief/rememberd/internal/domain/session"
	"github.com/thechief/rememberd/internal/domain/store"
)

// Handlers serves the status API.
type Handlers struct {
	engine  *session.Engine
	tracker *progress.Tracker
	prefs   *prefs.Store
	store   *store.Store
	version string
}

// NewHandlers creates the handler set.
func NewHandlers(
	engine *session.Engine,
	tracker *progress.Tracker,
	prefsStore *prefs.Store,
	st *store.Store,
	version string,
) *Handlers {
	return &Handlers{
		engine:  engine,
		tracker: tracker,
		prefs:   prefsStore,
		store:   st,
		version: version,
	}
}

// Root identifies the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "rememberd",
		"version": h.version,
	})
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"engine": h.engine.CurrentStatus(),
	})
}

// Status returns the engine summary.
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.CurrentStatus())
}

// Progress returns the latest per-app restore progress.
func (h *Handlers) Progress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"progress": h.tracker.Snapshot()})
}

// ListApps returns the saved application records.
func (h *Handlers) ListApps(c *gin.Context) {
	apps := h.store.AllApps()
	out := make([]gin.H, 0, len(apps))
	for _, app := range apps {
		out = append(out, gin.H{
			"class":         app.Class,
			"name":          h.engine.FriendlyName(app.Class),
			"desktop_entry": app.DesktopEntry,
			"instances":     len(app.Instances),
		})
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

// LaunchApp queues the saved instances of one class for launch.
func (h *Handlers) LaunchApp(c *gin.Context) {
	class := c.Param("class")
	queued, err := h.engine.LaunchInstances(class)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": class, "queued": queued})
}

// ExpectedInstances returns the instance ids a class still owes windows for.
func (h *Handlers) ExpectedInstances(c *gin.Context) {
	class := c.Param("class")
	c.JSON(http.StatusOK, gin.H{
		"class":     class,
		"instances": h.engine.GetExpectedInstances(class),
	})
}

// StartRestore begins a full session restore.
func (h *Handlers) StartRestore(c *gin.Context) {
	h.engine.StartRestore()
	c.JSON(http.StatusOK, gin.H{"restoring": true})
}

// FinalizeRestore force-ends the restore session.
func (h *Handlers) FinalizeRestore(c *gin.Context) {
	discarded := h.engine.FinalizeRestore()
	c.JSON(http.StatusOK, gin.H{"discarded": discarded})
}

// Cleanup clears assignments whose windows silently disappeared.
func (h *Handlers) Cleanup(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": h.engine.CleanupOrphanedInstances()})
}

// ResetAssignments clears all window-to-record bindings.
func (h *Handlers) ResetAssignments(c *gin.Context) {
	h.engine.ResetAssignments()
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// GetPrefs returns the active preferences.
func (h *Handlers) GetPrefs(c *gin.Context) {
	c.JSON(http.StatusOK, h.prefs.Current())
}

// SetPrefs replaces the active preferences.
func (h *Handlers) SetPrefs(c *gin.Context) {
	var p prefs.Preferences
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.prefs.Set(p)
	c.JSON(http.StatusOK, p)
}
