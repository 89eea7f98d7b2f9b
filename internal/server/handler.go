package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/divinesense/internal/dedup"
	"github.com/hrygo/divinesense/internal/jobplan"
	"github.com/hrygo/divinesense/internal/jobstore"
	"github.com/hrygo/divinesense/internal/model"
)

// PlanRunner executes a freshly-built plan to completion in the
// background, wiring each job through a Dispatcher.
type PlanRunner interface {
	Run(ctx context.Context, plan *jobplan.Plan) error
}

// DeliveryConfirmer transitions a job's result to DELIVERED. Satisfied
// by *internal/jobstore.JobStore.
type DeliveryConfirmer interface {
	ConfirmDelivery(ctx context.Context, jobID string) error
}

// Handler serves spec.md §6's two HTTP endpoints.
type Handler struct {
	dedup  *dedup.Cache
	jobs   DeliveryConfirmer
	runner PlanRunner
	runCtx context.Context
}

// NewHandler builds a Handler. runCtx bounds the lifetime of any
// plan dispatched asynchronously from a request (normally the process's
// root context, cancelled on shutdown).
func NewHandler(runCtx context.Context, dedupCache *dedup.Cache, jobs DeliveryConfirmer, runner PlanRunner) *Handler {
	return &Handler{dedup: dedupCache, jobs: jobs, runner: runner, runCtx: runCtx}
}

// Register wires the handler's routes onto e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/generate", h.handleGenerate)
	e.POST("/ai/job/:jobId/confirm-delivery", h.handleConfirmDelivery)
}

// generateRequestBody mirrors spec.md §6's POST /generate payload shape.
type generateRequestBody struct {
	Personality *model.Personality `json:"personality"`
	Message     model.Message      `json:"message"`
	Context     struct {
		UserID              string                             `json:"userId"`
		ChannelID           string                             `json:"channelId"`
		ServerID            string                             `json:"serverId"`
		Attachments         []model.Attachment                 `json:"attachments"`
		ReferencedMessages  []model.ReferencedMessage          `json:"referencedMessages"`
		ConversationHistory []model.ConversationHistoryMessage `json:"conversationHistory"`
		CrossChannelHistory []model.ChannelHistoryGroup        `json:"crossChannelHistory"`
	} `json:"context"`
	UserAPIKey          string `json:"userApiKey"`
	ResponseDestination string `json:"responseDestination"`
	SessionID           string `json:"sessionId"`
}

type generateResponseBody struct {
	JobID     string `json:"jobId"`
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// handleGenerate implements POST /generate: validates the submission,
// suppresses an exact resubmission within 5s via dedup, builds and
// schedules the job plan, and responds 202 immediately — the caller
// learns the outcome from the result stream, not this response.
func (h *Handler) handleGenerate(c echo.Context) error {
	var body generateRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if body.Personality == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "personality is required")
	}
	if body.ResponseDestination == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "responseDestination is required")
	}

	dedupReq := dedup.Request{
		PersonalityName: body.Personality.Name,
		UserID:          body.Context.UserID,
		ChannelID:       body.Context.ChannelID,
		Message:         body.Message.Text,
	}
	if entry, dup := h.dedup.CheckDuplicate(dedupReq); dup {
		return c.JSON(http.StatusAccepted, generateResponseBody{
			JobID:     entry.JobID,
			RequestID: entry.RequestID,
			Status:    "queued",
		})
	}

	req := &model.Request{
		CreatedAt:           time.Now(),
		RequestID:           uuid.NewString(),
		UserID:              body.Context.UserID,
		ChannelID:           body.Context.ChannelID,
		ServerID:            body.Context.ServerID,
		Personality:         body.Personality,
		Message:             body.Message,
		Attachments:         body.Context.Attachments,
		ReferencedMessages:  body.Context.ReferencedMessages,
		ConversationHistory: body.Context.ConversationHistory,
		CrossChannelHistory: body.Context.CrossChannelHistory,
		UserAPIKey:          body.UserAPIKey,
		ResponseDestination: body.ResponseDestination,
		SessionID:           body.SessionID,
	}

	plan, err := jobplan.Build(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := jobplan.Validate(req, plan); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.dedup.CacheRequest(dedupReq, req.RequestID, plan.GenerationJob.ID)

	go func() {
		if err := h.runner.Run(h.runCtx, plan); err != nil {
			c.Logger().Errorf("plan execution failed for request %s: %v", req.RequestID, err)
		}
	}()

	return c.JSON(http.StatusAccepted, generateResponseBody{
		JobID:     plan.GenerationJob.ID,
		RequestID: req.RequestID,
		Status:    "queued",
	})
}

type confirmDeliveryResponseBody struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// handleConfirmDelivery implements POST /ai/job/{jobId}/confirm-delivery,
// per spec.md §6: idempotent, 404 on an unknown jobId.
func (h *Handler) handleConfirmDelivery(c echo.Context) error {
	jobID := c.Param("jobId")

	if err := h.jobs.ConfirmDelivery(c.Request().Context(), jobID); err != nil {
		if err == jobstore.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job %q not found", jobID))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to confirm delivery")
	}

	return c.JSON(http.StatusOK, confirmDeliveryResponseBody{JobID: jobID, Status: "DELIVERED"})
}
