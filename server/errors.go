package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error taxonomy for the HTTP surface. Handlers return these (wrapped for
// detail); the echo error handler maps them to status codes and an APIError
// body. Validation happens before any write, so a taxonomy error never
// leaves partial state behind.
var (
	ErrNotFound         = errors.New("referenced entity not found")
	ErrDuplicateHandle  = errors.New("handle already registered")
	ErrSelfFollow       = errors.New("accounts cannot follow themselves")
	ErrAlreadyFollowing = errors.New("follow edge already exists")
	ErrNotFollowing     = errors.New("follow edge does not exist")
	ErrAlreadyReacted   = errors.New("reaction of this kind already recorded")
	ErrInvalidInput     = errors.New("invalid request payload")
	ErrModuleDisabled   = errors.New("module not enabled for this experiment")
	ErrResetInProgress  = errors.New("reset already in progress")
)

// APIError is the JSON error body: a stable name plus a human-readable
// message.
type APIError struct {
	ErrStr  string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrStr, e.Message)
}

type errMapping struct {
	sentinel error
	name     string
	code     int
}

var errMappings = []errMapping{
	{ErrNotFound, "NotFound", http.StatusNotFound},
	{ErrDuplicateHandle, "DuplicateHandle", http.StatusConflict},
	{ErrSelfFollow, "SelfFollow", http.StatusConflict},
	{ErrAlreadyFollowing, "AlreadyFollowing", http.StatusConflict},
	{ErrNotFollowing, "NotFollowing", http.StatusConflict},
	{ErrAlreadyReacted, "AlreadyReacted", http.StatusConflict},
	{ErrInvalidInput, "InvalidInput", http.StatusBadRequest},
	{ErrModuleDisabled, "ModuleDisabled", http.StatusForbidden},
	{ErrResetInProgress, "ResetInProgress", http.StatusConflict},
}

func (s *Server) errorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	for _, m := range errMappings {
		if errors.Is(err, m.sentinel) {
			ctx.JSON(m.code, &APIError{ErrStr: m.name, Message: err.Error()})
			return
		}
	}

	if he, ok := err.(*echo.HTTPError); ok {
		msg := fmt.Sprint(he.Message)
		ctx.JSON(he.Code, &APIError{ErrStr: http.StatusText(he.Code), Message: msg})
		return
	}

	s.log.Error("handler error", "path", ctx.Path(), "err", err)
	ctx.JSON(http.StatusInternalServerError, &APIError{ErrStr: "InternalError", Message: "internal server error"})
}
