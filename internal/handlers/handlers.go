package handlers

import (
	"errors"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"roundtrip-router/internal/database"
	"roundtrip-router/internal/geocoding"
	"roundtrip-router/internal/routing"
)

// StatusClientClosedRequest is returned when the caller went away mid-search
const StatusClientClosedRequest = 499

// Handler provides common handler utilities and dependencies
type Handler struct {
	DB        database.DataStore
	Geocoder  geocoding.Geocoder
	Optimizer routing.RoundTripOptimizer
	Defaults  routing.Options

	validate *validator.Validate
}

// NewHandler wires the handler dependencies. Defaults seed every search;
// request fields override them.
func NewHandler(db database.DataStore, geocoder geocoding.Geocoder, optimizer routing.RoundTripOptimizer, defaults routing.Options) *Handler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		DB:        db,
		Geocoder:  geocoder,
		Optimizer: optimizer,
		Defaults:  defaults,
		validate:  validate,
	}
}

// Register mounts the API routes on e
func (h *Handler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.GET("/health", h.HandleHealth)
	api.GET("/address-search", h.HandleAddressSearch)
	api.POST("/routes/optimize", h.HandleOptimize)
	api.POST("/routes/validate", h.HandleValidate)
	api.GET("/routes", h.HandleListRoutes)
	api.GET("/routes/:id", h.HandleGetRoute)
	api.GET("/routes/:id/geojson", h.HandleGetRouteGeoJSON)
	api.DELETE("/routes/:id", h.HandleDeleteRoute)
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeError writes a JSON error response
func (h *Handler) writeError(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func (h *Handler) handleNotFound(c echo.Context, message string) error {
	return h.writeError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

func (h *Handler) handleValidationError(c echo.Context, message string) error {
	return h.writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handleStructError reports validator failures as field → rule pairs
func (h *Handler) handleStructError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return h.handleValidationError(c, err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return h.writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", fields)
}

func (h *Handler) handleGeocodingError(c echo.Context, err error) error {
	return h.writeError(c, http.StatusUnprocessableEntity, "GEOCODING_FAILED", err.Error(), nil)
}

// handleSearchError maps engine errors onto the API error envelope
func (h *Handler) handleSearchError(c echo.Context, err error) error {
	var invalid *routing.ErrInvalidInput
	var noRoute *routing.ErrNoRouteFound
	var cancelled *routing.ErrCancelled

	switch {
	case errors.As(err, &invalid):
		return h.writeError(c, http.StatusBadRequest, "INVALID_INPUT", invalid.Error(), map[string]string{
			"field": invalid.Field,
		})
	case errors.As(err, &noRoute):
		return h.writeError(c, http.StatusUnprocessableEntity, "NO_ROUTE_FOUND", noRoute.Error(), noRoute.Diagnostics)
	case errors.As(err, &cancelled):
		return h.writeError(c, StatusClientClosedRequest, "CANCELLED", "The request was cancelled before a route was found.", nil)
	default:
		return h.handleInternalError(c, err)
	}
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(c echo.Context, err error) error {
	log.Printf("[ERROR] Internal error: %v", err)
	return h.writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// checkNotFound checks if an error is a not found error
func (h *Handler) checkNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(c echo.Context) error {
	if err := h.DB.HealthCheck(c.Request().Context()); err != nil {
		log.Printf("[ERROR] Health check failed: %v", err)
		return h.writeError(c, http.StatusServiceUnavailable, "UNHEALTHY", "Database is not reachable.", nil)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
