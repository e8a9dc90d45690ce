package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"roundtrip-router/internal/database"
	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

// ListRoutesResponse is one page of saved routes, newest first
type ListRoutesResponse struct {
	Routes []models.SavedRoute `json:"routes"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// HandleListRoutes handles GET /api/v1/routes
func (h *Handler) HandleListRoutes(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return h.handleValidationError(c, "limit must be an integer")
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return h.handleValidationError(c, "offset must be an integer")
	}
	limit, offset = database.ClampPage(limit, offset)

	routes, total, err := h.DB.Routes().List(c.Request().Context(), limit, offset)
	if err != nil {
		return h.handleInternalError(c, err)
	}

	log.Printf("[HTTP] GET /api/v1/routes: limit=%d offset=%d returned=%d total=%d", limit, offset, len(routes), total)
	return c.JSON(http.StatusOK, ListRoutesResponse{Routes: routes, Total: total, Limit: limit, Offset: offset})
}

// loadRoute fetches the route named by the :id path parameter. A nil route
// means the error response has already been written.
func (h *Handler) loadRoute(c echo.Context) (*models.SavedRoute, error) {
	id := c.Param("id")
	route, err := h.DB.Routes().GetByID(c.Request().Context(), id)
	switch {
	case err == nil:
		return route, nil
	case errors.Is(err, database.ErrInvalidID):
		return nil, h.handleValidationError(c, "Invalid route id")
	case h.checkNotFound(err):
		log.Printf("[HTTP] GET %s: route not found id=%s", c.Path(), id)
		return nil, h.handleNotFound(c, "Route not found")
	default:
		return nil, h.handleInternalError(c, err)
	}
}

// HandleGetRoute handles GET /api/v1/routes/:id
func (h *Handler) HandleGetRoute(c echo.Context) error {
	route, err := h.loadRoute(c)
	if route == nil {
		return err
	}
	return c.JSON(http.StatusOK, route)
}

// HandleGetRouteGeoJSON handles GET /api/v1/routes/:id/geojson
func (h *Handler) HandleGetRouteGeoJSON(c echo.Context) error {
	route, err := h.loadRoute(c)
	if route == nil {
		return err
	}

	body, err := geo.RouteFeatureCollection(&route.Route).MarshalJSON()
	if err != nil {
		return h.handleInternalError(c, err)
	}
	return c.Blob(http.StatusOK, "application/geo+json", body)
}

// HandleDeleteRoute handles DELETE /api/v1/routes/:id
func (h *Handler) HandleDeleteRoute(c echo.Context) error {
	id := c.Param("id")
	err := h.DB.Routes().Delete(c.Request().Context(), id)
	switch {
	case err == nil:
		log.Printf("[HTTP] DELETE /api/v1/routes/%s: deleted", id)
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, database.ErrInvalidID):
		return h.handleValidationError(c, "Invalid route id")
	case h.checkNotFound(err):
		return h.handleNotFound(c, "Route not found")
	default:
		return h.handleInternalError(c, err)
	}
}
