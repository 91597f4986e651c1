package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

const (
	// HeaderIdempotencyKey scopes a score update for safe client retries.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplayed is set on responses served from a stored result.
	HeaderIdempotentReplayed = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
)

// ScoreHandler serves score updates and the leaderboard.
type ScoreHandler struct {
	service      ports.ScoreService
	defaultLimit int
}

// NewScoreHandler returns a ScoreHandler. defaultLimit is used when the
// leaderboard request carries no limit.
func NewScoreHandler(service ports.ScoreService, defaultLimit int) *ScoreHandler {
	return &ScoreHandler{service: service, defaultLimit: defaultLimit}
}

// Update handles PATCH /user/score.
//
// @Summary      Add points to the caller's score
// @Tags         score
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string              false  "Client-chosen key; replays return the stored total"
// @Param        body             body      scoreUpdateRequest  true   "Points to add (may be negative)"
// @Success      200              {object}  scoreUpdateResponse
// @Failure      401              {object}  errorResponse
// @Failure      404              {object}  errorResponse
// @Failure      409              {object}  errorResponse
// @Failure      422              {object}  errorResponse
// @Failure      503              {object}  errorResponse
// @Router       /user/score [patch]
func (h *ScoreHandler) Update(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req scoreUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	key := c.Request().Header.Get(HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return echo.NewHTTPError(http.StatusUnprocessableEntity,
			"Idempotency-Key must be at most "+strconv.Itoa(maxIdempotencyKeyLen)+" characters")
	}

	result, err := h.service.AddPoints(c.Request().Context(), ports.ScoreUpdateInput{
		Username:       user.Username,
		Delta:          *req.Points,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}

	if result.Replayed {
		c.Response().Header().Set(HeaderIdempotentReplayed, "true")
	}
	return c.JSON(http.StatusOK, scoreUpdateResponse{Points: result.Total})
}

// Leaderboard handles GET /score.
//
// @Summary      Top scores
// @Tags         score
// @Produce      json
// @Param        limit  query     int  false  "Number of entries (1-100)"
// @Success      200    {array}   scoreEntryResponse
// @Failure      400    {object}  errorResponse
// @Failure      503    {object}  errorResponse
// @Router       /score [get]
func (h *ScoreHandler) Leaderboard(c echo.Context) error {
	limit := h.defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	entries, err := h.service.Leaderboard(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	resp := make([]scoreEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, scoreEntryResponse{Username: e.Username, Score: e.Score})
	}
	return c.JSON(http.StatusOK, resp)
}
