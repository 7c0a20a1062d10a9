package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AnalyseRequest is the body of POST /analyse. Time is in milliseconds and
// capped at one hour so it always fits a time.Duration.
type AnalyseRequest struct {
	FEN   string   `json:"fen" validate:"required"`
	Time  *float64 `json:"time" validate:"required,gt=0,lte=3600000"`
	Moves string   `json:"moves"`
}

// HistoryQuery holds the query parameters of GET /history.
type HistoryQuery struct {
	FEN        string `form:"fen"`
	Limit      int    `form:"limit" validate:"gte=0,lte=500"`
	Superseded *bool  `form:"superseded"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report JSON and query names rather than Go field names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
}

// validationMessage turns the first validation failure into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Parameter '%s' is required", fe.Field())
	case "gt":
		return fmt.Sprintf("Parameter '%s' must be greater than %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("Parameter '%s' must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("Parameter '%s' is out of range", fe.Field())
	}
	return fmt.Sprintf("Parameter '%s' is invalid", fe.Field())
}
