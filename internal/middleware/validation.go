package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "licensecore/internal/errors"
)

// DefaultMaxBodySize bounds JSON request bodies
const DefaultMaxBodySize = 1 << 20

// RequestDecoder decodes JSON bodies and validates them against their
// `validate` struct tags. Field names in errors use the JSON tag.
type RequestDecoder struct {
	validator   *validator.Validate
	maxBodySize int64
}

// NewRequestDecoder creates a decoder limited to maxBodySize bytes
func NewRequestDecoder(maxBodySize int64) *RequestDecoder {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &RequestDecoder{validator: v, maxBodySize: maxBodySize}
}

// Decode reads r's body into dst and validates it. Errors are *errors.APIError.
func (d *RequestDecoder) Decode(r *http.Request, dst any) error {
	if err := d.DecodeJSON(r, dst); err != nil {
		return err
	}
	return d.ValidateStruct(dst)
}

// DecodeJSON reads r's body into dst without struct validation, for handlers
// whose service validates the request and owns the error contract.
func (d *RequestDecoder) DecodeJSON(r *http.Request, dst any) error {
	if r.ContentLength > d.maxBodySize {
		return apierrors.ErrPayloadTooLarge
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, d.maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierrors.InvalidRequestWithError(err)
	}
	return nil
}

// ValidateStruct validates v and returns an APIError listing every failed field
func (d *RequestDecoder) ValidateStruct(v any) error {
	err := d.validator.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	details := make([]apierrors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", details)
}

func formatValidationError(err validator.FieldError) string {
	field, param := err.Field(), err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "hexadecimal":
		return fmt.Sprintf("%s must be hexadecimal", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}
