package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"roundtrip-router/internal/models"
	"roundtrip-router/internal/routing"
)

// geocodeRetries bounds address resolution before a search starts
const geocodeRetries = 3

// OptimizeRequest represents the request for a round-trip search.
// Exactly one of Start and Address is needed; Start wins when both are set.
type OptimizeRequest struct {
	Start     *models.Location `json:"start,omitempty" validate:"required_without=Address"`
	Address   string           `json:"address,omitempty" validate:"required_without=Start,max=300"`
	Minutes   float64          `json:"minutes" validate:"required,gte=1,lte=300"`
	Pace      *float64         `json:"pace,omitempty" validate:"omitempty,gt=0,lte=60"`
	Tolerance *float64         `json:"tolerance,omitempty" validate:"omitempty,gt=0"`
	AcceptCap *int             `json:"accept_cap,omitempty" validate:"omitempty,gte=1,lte=50"`
	FanOut    *int             `json:"fan_out,omitempty" validate:"omitempty,gte=1,lte=16"`
	Name      string           `json:"name,omitempty" validate:"max=120"`
	Save      bool             `json:"save,omitempty"`
}

// OptimizeResponse is the result of a successful search
type OptimizeResponse struct {
	ID              string                 `json:"id,omitempty"`
	ResolvedAddress string                 `json:"resolved_address,omitempty"`
	Route           *models.OptimizedRoute `json:"route"`
	Diagnostics     routing.Diagnostics    `json:"diagnostics"`
	Warnings        []string               `json:"warnings"`
	ElapsedMs       int64                  `json:"elapsed_ms"`
}

// options applies the request overrides on top of the defaults
func (req *OptimizeRequest) options(defaults routing.Options) routing.Options {
	opts := defaults
	if req.Pace != nil {
		opts.PaceMinutesPerKm = *req.Pace
	}
	if req.Tolerance != nil {
		opts.ToleranceMinutes = *req.Tolerance
	}
	if req.AcceptCap != nil {
		opts.AcceptCap = *req.AcceptCap
	}
	if req.FanOut != nil {
		opts.FanOut = *req.FanOut
	}
	return opts
}

// HandleOptimize handles POST /api/v1/routes/optimize
func (h *Handler) HandleOptimize(c echo.Context) error {
	var req OptimizeRequest
	if err := c.Bind(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/routes/optimize: invalid_json err=%v", err)
		return h.handleValidationError(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		log.Printf("[HTTP] POST /api/v1/routes/optimize: validation_failed err=%v", err)
		return h.handleStructError(c, err)
	}

	ctx := c.Request().Context()
	var resp OptimizeResponse

	var start models.Location
	if req.Start != nil {
		start = *req.Start
	} else {
		geocodeStart := time.Now()
		result, err := h.Geocoder.GeocodeWithRetry(ctx, req.Address, geocodeRetries)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return h.handleSearchError(c, &routing.ErrCancelled{Err: err})
			}
			log.Printf("[HTTP] POST /api/v1/routes/optimize: geocoding_failed address=%s err=%v", req.Address, err)
			return h.handleGeocodingError(c, err)
		}
		log.Printf("[TIMING] Geocoding: %v", time.Since(geocodeStart))
		start = result.Location
		resp.ResolvedAddress = result.DisplayName
	}

	opts := req.options(h.Defaults)
	log.Printf("[HTTP] POST /api/v1/routes/optimize: start=(%.6f,%.6f) minutes=%.1f pace=%.2f tolerance=%.1f save=%v",
		start.Lat, start.Lng, req.Minutes, opts.PaceMinutesPerKm, opts.ToleranceMinutes, req.Save)

	route, report, err := h.Optimizer.OptimizeWithReport(ctx, start, req.Minutes, &opts)
	if err != nil {
		log.Printf("[HTTP] POST /api/v1/routes/optimize: search_failed err=%v", err)
		return h.handleSearchError(c, err)
	}

	resp.Route = route
	resp.Diagnostics = report.Diagnostics
	resp.Warnings = report.Warnings
	resp.ElapsedMs = report.Elapsed.Milliseconds()

	if req.Save {
		saved, err := h.DB.Routes().Create(ctx, &models.SavedRoute{
			Name:             req.Name,
			RequestedMinutes: req.Minutes,
			PaceMinutesPerKm: opts.PaceMinutesPerKm,
			Route:            *route,
		})
		if err != nil {
			return h.handleInternalError(c, err)
		}
		resp.ID = saved.ID
	}

	log.Printf("[HTTP] POST /api/v1/routes/optimize: shape=%s distance=%.3fkm duration=%.2fmin attempts=%d id=%s",
		route.Shape, route.TotalDistanceKm, route.EstimatedDurationMinutes, report.Diagnostics.Attempts, resp.ID)
	return c.JSON(http.StatusOK, resp)
}

// ValidateRequest checks an existing route against a requested duration
type ValidateRequest struct {
	Route     *models.OptimizedRoute `json:"route" validate:"required"`
	Minutes   float64                `json:"minutes" validate:"required,gte=1,lte=300"`
	Pace      *float64               `json:"pace,omitempty" validate:"omitempty,gt=0,lte=60"`
	Tolerance *float64               `json:"tolerance,omitempty" validate:"omitempty,gt=0"`
}

// ValidateResponse carries the verdict and the window it was judged against
type ValidateResponse struct {
	routing.ValidationResult
	Constraints models.SearchConstraints `json:"constraints"`
}

// HandleValidate handles POST /api/v1/routes/validate
func (h *Handler) HandleValidate(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/routes/validate: invalid_json err=%v", err)
		return h.handleValidationError(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return h.handleStructError(c, err)
	}

	pace := h.Defaults.PaceMinutesPerKm
	if req.Pace != nil {
		pace = *req.Pace
	}
	tolerance := h.Defaults.ToleranceMinutes
	if req.Tolerance != nil {
		tolerance = *req.Tolerance
	}

	constraints := models.NewSearchConstraints(req.Route.StartLocation, req.Minutes, tolerance, pace)
	result := routing.Validate(req.Route, constraints)
	log.Printf("[HTTP] POST /api/v1/routes/validate: valid=%v errors=%d warnings=%d",
		result.IsValid, len(result.Errors), len(result.Warnings))

	return c.JSON(http.StatusOK, ValidateResponse{ValidationResult: result, Constraints: constraints})
}
