package handlers

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"roundtrip-router/internal/geocoding"
)

const addressSuggestionLimit = 5

// HandleAddressSearch handles GET /api/v1/address-search
func (h *Handler) HandleAddressSearch(c echo.Context) error {
	query := c.QueryParam("address")
	log.Printf("[HTTP] GET /api/v1/address-search: query=%s", query)

	if len(query) < 4 {
		log.Printf("[HTTP] GET /api/v1/address-search: query too short, returning empty list")
		return c.JSON(http.StatusOK, []geocoding.GeocodingResult{})
	}

	results, err := h.Geocoder.Search(c.Request().Context(), query, addressSuggestionLimit)
	if err != nil {
		log.Printf("[ERROR] Failed to search addresses: query=%s err=%v", query, err)
		return c.JSON(http.StatusOK, []geocoding.GeocodingResult{})
	}

	log.Printf("[HTTP] GET /api/v1/address-search: query=%s results_count=%d", query, len(results))
	return c.JSON(http.StatusOK, results)
}
