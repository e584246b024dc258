package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/response"
	appvalidator "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation
// rules. When validation fails, an error response is written and false is
// returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appvalidator.ValidateStruct(dest); err != nil {
		response.Error(c, apperrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	ve, ok := err.(appvalidator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		messages = append(messages, failure.Message())
	}
	return strings.Join(messages, "; ")
}
