package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
	"github.com/mr1hm/go-wildfire-alerts/internal/channel"
	"github.com/mr1hm/go-wildfire-alerts/internal/channel/whatsapp"
	"github.com/mr1hm/go-wildfire-alerts/internal/geo"
	"github.com/mr1hm/go-wildfire-alerts/internal/incident"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
	"github.com/mr1hm/go-wildfire-alerts/internal/notify"
)

const geoJSONContentType = "application/geo+json"

type IncidentService interface {
	Create(ctx context.Context, req models.CreateIncidentRequest) (*models.Incident, error)
	Get(ctx context.Context, id int64) (*models.Incident, error)
	List(ctx context.Context, f incident.ListFilter) ([]models.Incident, error)
	Update(ctx context.Context, id int64, patch models.IncidentPatch) (*models.Incident, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, req models.AlertRequest) (*notify.Result, error)
	Channels() []channel.Channel
}

// SessionChannel is the operator surface of the session-based channel.
type SessionChannel interface {
	Init(ctx context.Context) (whatsapp.State, error)
	PairingCode() (string, []byte, error)
	BindGroup(ctx context.Context, groupID string) error
	Status() channel.Status
}

type EventSource interface {
	Subscribe() (uint64, <-chan *models.IncidentEvent)
	Unsubscribe(id uint64)
}

type Handler struct {
	incidents IncidentService
	notifier  Notifier
	session   SessionChannel
	events    EventSource
}

// NewHandler wires the HTTP surface. session and events may be nil, in
// which case their routes answer 404 and 503 respectively.
func NewHandler(incidents IncidentService, notifier Notifier, session SessionChannel, events EventSource) *Handler {
	return &Handler{
		incidents: incidents,
		notifier:  notifier,
		session:   session,
		events:    events,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.POST("/incidents", h.createIncident)
	api.GET("/incidents", h.listIncidents)
	api.DELETE("/incidents", h.deleteAllIncidents)
	api.GET("/incidents/stream", h.streamIncidents)
	api.GET("/incidents/:id", h.getIncident)
	api.PATCH("/incidents/:id", h.updateIncident)
	api.DELETE("/incidents/:id", h.deleteIncident)

	api.POST("/notifications", h.sendNotification)

	api.GET("/channels", h.listChannels)
	api.GET("/channels/whatsapp/pairing-code", h.pairingCode)
	api.POST("/channels/whatsapp/init", h.initSession)
	api.PUT("/channels/whatsapp/group", h.bindGroup)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) createIncident(c *gin.Context) {
	var req models.CreateIncidentRequest
	if !bindJSON(c, &req) {
		return
	}

	inc, err := h.incidents.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", geoJSONContentType)
	c.JSON(http.StatusCreated, geo.ToFeature(inc))
}

func (h *Handler) listIncidents(c *gin.Context) {
	var f incident.ListFilter
	if s := c.Query("status"); s != "" {
		status := models.IncidentStatus(s)
		f.Status = &status
	}

	incidents, err := h.incidents.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", geoJSONContentType)
	c.JSON(http.StatusOK, geo.ToFeatureCollection(incidents))
}

func (h *Handler) getIncident(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	inc, err := h.incidents.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", geoJSONContentType)
	c.JSON(http.StatusOK, geo.ToFeature(inc))
}

func (h *Handler) updateIncident(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var patch models.IncidentPatch
	if !bindJSON(c, &patch) {
		return
	}

	inc, err := h.incidents.Update(c.Request.Context(), id, patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", geoJSONContentType)
	c.JSON(http.StatusOK, geo.ToFeature(inc))
}

func (h *Handler) deleteIncident(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.incidents.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) deleteAllIncidents(c *gin.Context) {
	n, err := h.incidents.DeleteAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *Handler) sendNotification(c *gin.Context) {
	var req models.AlertRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.notifier.Dispatch(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, res)
}

func (h *Handler) listChannels(c *gin.Context) {
	channels := h.notifier.Channels()
	out := make([]channel.Status, 0, len(channels))
	for _, ch := range channels {
		if r, ok := ch.(channel.StatusReporter); ok {
			out = append(out, r.Status())
			continue
		}
		out = append(out, channel.Status{Name: ch.Name(), Configured: ch.Configured(), Ready: ch.Configured()})
	}
	c.JSON(http.StatusOK, gin.H{"channels": out})
}

func (h *Handler) pairingCode(c *gin.Context) {
	if h.session == nil {
		writeError(c, apperr.ErrNotFound)
		return
	}
	code, png, err := h.session.PairingCode()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "qr_png": png})
}

func (h *Handler) initSession(c *gin.Context) {
	if h.session == nil {
		writeError(c, &apperr.ChannelConfigError{Channel: whatsapp.Name, Reason: "session channel is disabled"})
		return
	}
	state, err := h.session.Init(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "status": h.session.Status()})
}

type bindGroupRequest struct {
	GroupID string `json:"group_id"`
}

func (h *Handler) bindGroup(c *gin.Context) {
	if h.session == nil {
		writeError(c, &apperr.ChannelConfigError{Channel: whatsapp.Name, Reason: "session channel is disabled"})
		return
	}
	var req bindGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.session.BindGroup(c.Request.Context(), req.GroupID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group_id": req.GroupID})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(c, apperr.Invalid("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// bindJSON decodes the body into v and writes a 400 on failure. Validation
// is left to the service layer.
func bindJSON(c *gin.Context, v any) bool {
	err := json.NewDecoder(c.Request.Body).Decode(v)
	if err == nil {
		return true
	}

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		writeError(c, apperr.Invalid("", "request body is required"))
	case errors.As(err, &typeErr) && models.IsLatLngType(typeErr.Type):
		writeError(c, apperr.Invalid(typeErr.Field, "must be a [latitude, longitude] pair, got %s", typeErr.Value))
	case errors.As(err, &typeErr):
		writeError(c, apperr.Invalid(typeErr.Field, "must be a %s", typeErr.Type))
	default:
		writeError(c, apperr.Invalid("", "invalid JSON body: %v", err))
	}
	return false
}

func writeError(c *gin.Context, err error) {
	var (
		validationErr *apperr.ValidationError
		configErr     *apperr.ChannelConfigError
		stateErr      *apperr.ChannelStateError
		remoteErr     *apperr.RemoteServiceError
	)

	switch {
	case errors.As(err, &validationErr):
		body := gin.H{"error": validationErr.Message}
		if validationErr.Field != "" {
			body["field"] = validationErr.Field
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
	case errors.Is(err, apperr.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &configErr), errors.As(err, &stateErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &remoteErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
