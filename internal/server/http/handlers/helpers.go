package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/server/http/dto"
	"github.com/polkiloo/shiftclose/internal/server/http/middleware"
)

// CurrentActor extracts the authenticated actor from context.
func CurrentActor(c *gin.Context) model.Actor {
	val, ok := c.Get(middleware.ActorContextKey)
	if !ok {
		return model.Actor{}
	}
	actor, _ := val.(model.Actor)
	return actor
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.CodeBadRequest, Message: message})
}

func writeError(c *gin.Context, err error) {
	var validation *domainErrors.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Code: dto.CodeValidation, Message: err.Error(), Problems: validation.Problems})
	case errors.Is(err, domainErrors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Code: dto.CodeValidation, Message: err.Error()})
	case errors.Is(err, domainErrors.ErrForbidden):
		c.JSON(http.StatusForbidden, dto.ErrorResponse{Code: dto.CodeForbidden, Message: err.Error()})
	case errors.Is(err, domainErrors.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Code: dto.CodeNotFound, Message: err.Error()})
	case errors.Is(err, domainErrors.ErrExpired):
		c.JSON(http.StatusGone, dto.ErrorResponse{Code: dto.CodeExpired, Message: err.Error()})
	case errors.Is(err, domainErrors.ErrVersionConflict):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Code: dto.CodeVersionConflict, Message: err.Error()})
	case errors.Is(err, domainErrors.ErrConflict):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Code: dto.CodeConflict, Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: dto.CodeInternal, Message: "internal error"})
	}
}

func writeVersionConflict(c *gin.Context, conflict *model.VersionConflict) {
	c.JSON(http.StatusConflict, dto.ErrorResponse{
		Code:            dto.CodeVersionConflict,
		Message:         domainErrors.ErrVersionConflict.Error(),
		CurrentVersion:  conflict.CurrentVersion,
		ExpectedVersion: conflict.ExpectedVersion,
	})
}

func dayIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("day_id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "day_id must be a positive integer")
		return 0, false
	}
	return id, true
}
