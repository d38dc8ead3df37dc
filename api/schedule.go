package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/labstack/echo/v4"

	"github.com/vultisig/dca-plugin/common"
	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/plugin/dca"
	"github.com/vultisig/dca-plugin/service"
)

const (
	senderHeader      = "X-Sender"
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

type ErrorResponse struct {
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{
		Message: message,
	}
}

type CreateScheduleRequest struct {
	Funds                  []types.Coin `json:"funds" validate:"dive"`
	MaxSellAmount          sdkmath.Uint `json:"max_sell_amount"`
	MaxSlippageBasisPoints uint64       `json:"max_slippage_basis_points"`
}

type RunResponse struct {
	TaskID string `json:"task_id"`
}

type PriceResponse struct {
	Price string `json:"price"`
}

var categoryStatus = map[dca.Category]int{
	dca.CategoryInput:         http.StatusBadRequest,
	dca.CategoryCapacity:      http.StatusConflict,
	dca.CategoryStateLookup:   http.StatusNotFound,
	dca.CategoryMarketData:    http.StatusServiceUnavailable,
	dca.CategoryExecution:     http.StatusUnprocessableEntity,
	dca.CategoryArithmetic:    http.StatusUnprocessableEntity,
	dca.CategoryAuthorization: http.StatusForbidden,
}

// writeError renders contract and input errors with a matching status.
// Anything else is an internal failure.
func (s *Server) writeError(c echo.Context, err error) error {
	var cerr *dca.ContractError
	switch {
	case errors.As(err, &cerr):
		status, ok := categoryStatus[cerr.Category()]
		if !ok {
			status = http.StatusBadRequest
		}
		return c.JSON(status, ErrorResponse{Message: cerr.Error(), Category: string(cerr.Category())})
	case errors.Is(err, common.ErrInvalidAddress):
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	default:
		s.logger.WithError(err).WithField("path", c.Path()).Error("request failed")
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal error"))
	}
}

func sender(c echo.Context) (string, bool) {
	value := c.Request().Header.Get(senderHeader)
	return value, value != ""
}

func idempotencyKey(c echo.Context, scope string) string {
	key := c.Request().Header.Get(idempotencyHeader)
	if key == "" {
		return ""
	}
	return "idempotency:" + scope + ":" + key
}

// claimIdempotencyKey reports false when the request carries a key that was
// already used.
func (s *Server) claimIdempotencyKey(c echo.Context, scope string) (bool, error) {
	key := idempotencyKey(c, scope)
	if key == "" || s.idempotency == nil {
		return true, nil
	}
	return s.idempotency.SetNX(c.Request().Context(), key, "1", idempotencyTTL)
}

// releaseIdempotencyKey frees a claimed key after the operation failed, so
// the client can retry with it.
func (s *Server) releaseIdempotencyKey(c echo.Context, scope string) {
	key := idempotencyKey(c, scope)
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Delete(c.Request().Context(), key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("failed to release idempotency key")
	}
}

func (s *Server) CreateSchedule(c echo.Context) error {
	from, ok := sender(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("X-Sender header is required"))
	}
	var req CreateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("fail to parse request"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	}
	fresh, err := s.claimIdempotencyKey(c, "create")
	if err != nil {
		return s.writeError(c, err)
	}
	if !fresh {
		return c.JSON(http.StatusConflict, NewErrorResponse("duplicate request"))
	}

	resp, err := s.schedules.CreateSchedule(c.Request().Context(), from, req.Funds, types.CreateScheduleMsg{
		MaxSellAmount:          req.MaxSellAmount,
		MaxSlippageBasisPoints: req.MaxSlippageBasisPoints,
	})
	if err != nil {
		s.releaseIdempotencyKey(c, "create")
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) WithdrawAll(c echo.Context) error {
	from, ok := sender(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("X-Sender header is required"))
	}
	fresh, err := s.claimIdempotencyKey(c, "withdraw")
	if err != nil {
		return s.writeError(c, err)
	}
	if !fresh {
		return c.JSON(http.StatusConflict, NewErrorResponse("duplicate request"))
	}

	resp, err := s.schedules.WithdrawAll(c.Request().Context(), from)
	if err != nil {
		s.releaseIdempotencyKey(c, "withdraw")
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) TriggerRun(c echo.Context) error {
	taskID, err := s.schedules.TriggerRun(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, RunResponse{TaskID: taskID})
}

func (s *Server) GetRunStatus(c echo.Context) error {
	status, err := s.schedules.GetRunStatus(c.Request().Context(), c.Param("taskId"))
	if errors.Is(err, service.ErrTaskNotFound) {
		return c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	}
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) GetCurrentPrice(c echo.Context) error {
	price, err := s.schedules.GetCurrentPrice(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, PriceResponse{Price: price.String()})
}

func (s *Server) GetSchedulesByOwner(c echo.Context) error {
	schedules, err := s.schedules.GetSchedulesByOwner(c.Request().Context(), c.Param("owner"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, schedules)
}

func (s *Server) GetConfig(c echo.Context) error {
	cfg, err := s.schedules.GetConfig(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) GetContractInfo(c echo.Context) error {
	info, err := s.schedules.GetContractInfo(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) GetInstructionHistory(c echo.Context) error {
	scheduleID, err := strconv.ParseUint(c.Param("scheduleId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid schedule id"))
	}
	take, err := queryInt(c, "take", 30)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid take"))
	}
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid skip"))
	}

	history, err := s.schedules.GetInstructionHistory(c.Request().Context(), scheduleID, c.QueryParam("sort"), take, skip)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return value, nil
}
