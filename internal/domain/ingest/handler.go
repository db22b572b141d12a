package ingest

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vitalwatch/vitalwatch/internal/domain/registry"
)

const APIKeyHeader = "X-API-Key"

// SubmitResponse mirrors what devices in the field already expect back.
type SubmitResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	AlertsGenerated int    `json:"alerts_generated"`
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/ingest", h.Submit)
}

// Submit accepts one reading from a device.
func (h *Handler) Submit(c echo.Context) error {
	apiKey := c.Request().Header.Get(APIKeyHeader)
	if apiKey == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
	}

	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Ingest(c.Request().Context(), apiKey, req)
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.Is(err, registry.ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid device credentials")
		case errors.Is(err, registry.ErrDeviceInactive):
			return echo.NewHTTPError(http.StatusForbidden, "Device is inactive")
		case errors.As(err, &ve):
			return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
		default:
			// Could be the registry lookup or the reading insert; stay vague.
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	return c.JSON(http.StatusOK, SubmitResponse{
		Success:         true,
		Message:         "Data received successfully",
		AlertsGenerated: len(result.Alerts),
	})
}
