package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
)

// Allow-lists for partial updates. A payload with any other key is
// rejected as a whole.
var (
	userUpdatableFields = []string{"name", "email", "password", "age"}
	taskUpdatableFields = []string{"description", "completed"}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// nopassword rejects passwords containing the word "password".
	v.RegisterValidation("nopassword", func(fl validator.FieldLevel) bool {
		return !strings.Contains(strings.ToLower(fl.Field().String()), "password")
	})
	return v
}

// userFields is the validated shape of a user record before it is saved.
type userFields struct {
	Name     string `json:"name"     validate:"required"`
	Email    string `json:"email"    validate:"required,email"`
	Age      int    `json:"age"      validate:"min=0"`
	Password string `json:"password" validate:"omitempty,min=7,nopassword"`
}

// normalize applies the trimming and case rules that run before
// validation.
func (f *userFields) normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Password = strings.TrimSpace(f.Password)
}

// check validates f. requirePassword is set on registration, where the
// password is mandatory; profile updates validate it only when present.
func (f *userFields) check(requirePassword bool) error {
	if requirePassword && f.Password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	if err := validateStruct(f); err != nil {
		return err
	}
	if len(f.Password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	return nil
}

// validateStruct runs the validator and converts the first failure into a
// ValidationError naming the offending JSON field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating input: %w", err)
	}

	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "email is invalid"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		if fe.Field() == "age" {
			return "age must be a positive number"
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "nopassword":
		return `password cannot contain "password"`
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// checkAllowedFields fails with a DisallowedField error naming the first
// key of update (in sorted order) that is not in allowed.
func checkAllowedFields(update map[string]json.RawMessage, allowed []string) error {
	var bad []string
	for key := range update {
		if !slices.Contains(allowed, key) {
			bad = append(bad, key)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	slices.Sort(bad)
	return apperror.DisallowedField(bad[0])
}

// decodeField unmarshals one update value, reporting type mismatches as
// validation errors on that field.
func decodeField(update map[string]json.RawMessage, key string, dst any) (bool, error) {
	raw, ok := update[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, apperror.ValidationFailed(key, fmt.Sprintf("%s has the wrong type", key))
	}
	return true, nil
}
