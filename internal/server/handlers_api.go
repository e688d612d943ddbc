package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/medsimlabs/vitalcast/internal/domain"
	apperrors "github.com/medsimlabs/vitalcast/internal/errors"
)

type createDispatchRequest struct {
	SessionID     string    `json:"sessionId"`
	PatientID     string    `json:"patientId"`
	Title         string    `json:"title"`
	Src           string    `json:"src"`
	ScheduledTime time.Time `json:"scheduledTime"`
}

type dispatchResponse struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	PatientID     string    `json:"patientId"`
	Title         string    `json:"title"`
	Src           string    `json:"src"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toDispatchResponse(d *domain.ScheduledDispatch) dispatchResponse {
	return dispatchResponse{
		ID:            d.ID.String(),
		SessionID:     d.SessionID,
		PatientID:     d.PatientID,
		Title:         d.Title,
		Src:           d.Src,
		ScheduledTime: d.ScheduledAt,
		Status:        string(d.Status),
		Attempts:      d.Attempts,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (s *Server) handleCreateDispatch(c echo.Context) error {
	var req createDispatchRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	if req.SessionID == "" {
		return apperrors.ValidationError("sessionId is required")
	}
	if req.PatientID == "" {
		return apperrors.ValidationError("patientId is required")
	}
	if req.Title == "" {
		return apperrors.ValidationError("title is required")
	}
	if req.Src == "" {
		return apperrors.ValidationError("src is required")
	}
	if req.ScheduledTime.IsZero() {
		return apperrors.ValidationError("scheduledTime is required")
	}

	dispatch, err := s.store.Create(c.Request().Context(), domain.NewDispatch{
		SessionID:   req.SessionID,
		PatientID:   req.PatientID,
		Title:       req.Title,
		Src:         req.Src,
		ScheduledAt: req.ScheduledTime,
	})
	if err != nil {
		return storeError("failed to create dispatch", err)
	}

	if err := c.JSON(201, toDispatchResponse(dispatch)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListDispatches(c echo.Context) error {
	filter := domain.DispatchFilter{
		SessionID: c.QueryParam("sessionId"),
	}

	if status := c.QueryParam("status"); status != "" {
		switch domain.DispatchStatus(status) {
		case domain.StatusPending, domain.StatusDispatching, domain.StatusCompleted, domain.StatusFailed:
			filter.Status = domain.DispatchStatus(status)
		default:
			return apperrors.ValidationError("invalid status").WithField("status", status)
		}
	}

	dispatches, err := s.store.List(c.Request().Context(), filter)
	if err != nil {
		return storeError("failed to list dispatches", err)
	}

	out := make([]dispatchResponse, 0, len(dispatches))
	for i := range dispatches {
		out = append(out, toDispatchResponse(&dispatches[i]))
	}

	if err := c.JSON(200, out); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetDispatch(c echo.Context) error {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		return apperrors.ValidationError("invalid dispatch ID").WithField("id", idStr)
	}

	dispatch, err := s.store.GetByID(c.Request().Context(), id)
	if errors.Is(err, domain.ErrDispatchNotFound) {
		return apperrors.NotFoundError("dispatch not found").WithField("id", idStr)
	}
	if err != nil {
		return storeError("failed to load dispatch", err)
	}

	if err := c.JSON(200, toDispatchResponse(dispatch)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func storeError(message string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return apperrors.UnavailableError(message, err)
	}
	return apperrors.InternalError(message, err)
}
