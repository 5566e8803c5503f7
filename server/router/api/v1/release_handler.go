package v1

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/reelfeed/reelfeed/server/gateway/ratelimit"
	"github.com/reelfeed/reelfeed/server/service/release"
	"github.com/reelfeed/reelfeed/server/upstream"
)

// ListReleases returns the assembled catalog, served cache-first.
//
//	GET /api/v1/releases
func (s *APIV1Service) ListReleases(c echo.Context) error {
	catalog, err := s.Releases.ListReleases(c.Request().Context(), false)
	if err != nil {
		return s.upstreamError(c, err)
	}
	return c.JSON(http.StatusOK, catalog)
}

// RefreshReleases rebuilds the catalog from the providers, bypassing
// cached listings.
//
//	POST /api/v1/refresh
func (s *APIV1Service) RefreshReleases(c echo.Context) error {
	catalog, err := s.Releases.ListReleases(c.Request().Context(), true)
	if err != nil {
		return s.upstreamError(c, err)
	}
	return c.JSON(http.StatusOK, catalog)
}

type requestMediaBody struct {
	Seasons []int `json:"seasons"`
}

// RequestMedia forwards a download request to Jellyseerr and hides the
// item from subsequent listings.
//
//	POST /api/v1/request/:mediaType/:id
func (s *APIV1Service) RequestMedia(c echo.Context) error {
	mediaType, id, err := mediaParams(c)
	if err != nil {
		return err
	}

	var body requestMediaBody
	if err := c.Bind(&body); err != nil && c.Request().ContentLength > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	seasons := body.Seasons
	if mediaType == release.MediaTypeTV && len(seasons) == 0 {
		// Default to the known season count so a bare request grabs the
		// whole show.
		seasons = s.knownSeasons(c.Request().Context(), id)
	}

	if err := s.Releases.RequestMedia(c.Request().Context(), mediaType, id, seasons); err != nil {
		if upstream.IsCode(err, upstream.ErrCodeBadOperation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return s.upstreamError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "requested"})
}

// HideMedia hides an item from subsequent listings without requesting it.
//
//	POST /api/v1/hide/:mediaType/:id
func (s *APIV1Service) HideMedia(c echo.Context) error {
	mediaType, id, err := mediaParams(c)
	if err != nil {
		return err
	}
	s.Releases.Hide(mediaType, id)
	return c.NoContent(http.StatusNoContent)
}

func mediaParams(c echo.Context) (string, int64, error) {
	mediaType := c.Param("mediaType")
	if mediaType != release.MediaTypeMovie && mediaType != release.MediaTypeTV {
		return "", 0, echo.NewHTTPError(http.StatusBadRequest, "mediaType must be movie or tv")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return "", 0, echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return mediaType, id, nil
}

// knownSeasons asks the catalog for a show's season count and expands it
// to the 1..n list Jellyseerr expects. Unknown shows request season 1.
func (s *APIV1Service) knownSeasons(ctx context.Context, id int64) []int {
	count := s.Releases.SeasonCount(ctx, id)
	if count <= 0 {
		count = 1
	}
	seasons := make([]int, count)
	for i := range seasons {
		seasons[i] = i + 1
	}
	return seasons
}

// upstreamError translates gateway failures into API status codes. The
// mediation layer's own backpressure and provider failures surface
// differently so clients can tell "slow down" from "provider is down".
func (s *APIV1Service) upstreamError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ratelimit.ErrTimeout):
		c.Response().Header().Set("Retry-After", "1")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "provider rate limit saturated")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "upstream call timed out")
	default:
		s.logger.Error("upstream failure", "path", c.Path(), "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "upstream provider failure")
	}
}
