package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"policyqa/types"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	if ApiError, ok := err.(Error); ok {
		return c.Status(ApiError.Code).JSON(ApiError)
	} else {
		if ValError, ok := err.(ValidationError); ok {
			return c.Status(ValError.Status).JSON(ValError)
		}
	}

	var fiberErr *fiber.Error
	if !errors.As(err, &fiberErr) {
		fiberErr = fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	ApiError := NewError(fiberErr.Code, err.Error())
	curTime := time.Now()
	fmt.Printf("%s Request failed with code %d and message: %s\n", &curTime, ApiError.Code, ApiError.Message)
	return c.Status(ApiError.Code).JSON(ApiError)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

// ErrInvalidQuery maps a core invalid-query rejection to a 400.
func ErrInvalidQuery(err error) Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: err.Error(),
	}
}

// ErrConflict maps duplicate chunk ids during ingestion to a 409.
func ErrConflict(err error) Error {
	return Error{
		Code:    fiber.StatusConflict,
		Message: err.Error(),
	}
}

// FromDomain converts known core errors into API errors; anything else is
// passed through to the generic handler.
func FromDomain(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidQuery):
		return ErrInvalidQuery(err)
	case errors.Is(err, types.ErrDuplicateChunk):
		return ErrConflict(err)
	default:
		return err
	}
}
