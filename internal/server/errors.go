package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const (
	codeValidation    = "validation_error"
	codeDuplicateUser = "duplicate_user"
	codeUnauthorized  = "unauthorized"
	codeNotFound      = "not_found"
	codeInternal      = "internal_error"

	messageNotAuthenticated = "Not authenticated"
	messageInvalidBody      = "Invalid request body"
	messagePasswordTooLong  = "Password must be at most 72 bytes"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Error: code, Message: message})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: message})
}

var registerValidationsOnce sync.Once

// registerValidations teaches gin's validator the notblank tag and makes
// field errors report JSON names.
func registerValidations() {
	registerValidationsOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(jsonFieldName)
		_ = engine.RegisterValidation("notblank", validators.NotBlank)
	})
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	default:
		return name
	}
}

// bindingMessage renders the first validation failure as a sentence.
func bindingMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return messageInvalidBody
	}
	fieldErr := validationErrors[0]
	field := displayName(fieldErr.Field())
	switch fieldErr.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fieldErr.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fieldErr.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func displayName(field string) string {
	if field == "" {
		return "Value"
	}
	return strings.ToUpper(field[:1]) + field[1:]
}
