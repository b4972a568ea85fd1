package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validator is consulted before every mutating operation. A non-empty
// ValidationErrors aborts the operation with a *ValidationError; a non-nil
// error aborts it with that error. Either way the backend is not touched.
type Validator[PK, ID, D any] interface {
	ValidatePut(ctx context.Context, pk PK, id ID, doc D) (ValidationErrors, error)
	ValidateDelete(ctx context.Context, pk PK, id ID) (ValidationErrors, error)
}

// NopValidator accepts everything. Embed it to override a single method.
type NopValidator[PK, ID, D any] struct{}

func (NopValidator[PK, ID, D]) ValidatePut(context.Context, PK, ID, D) (ValidationErrors, error) {
	return nil, nil
}

func (NopValidator[PK, ID, D]) ValidateDelete(context.Context, PK, ID) (ValidationErrors, error) {
	return nil, nil
}

// ValidatorFuncs adapts plain functions to a full-arity Validator.
// A nil function reports no errors.
type ValidatorFuncs[PK, ID, D any] struct {
	Put    func(ctx context.Context, pk PK, id ID, doc D) (ValidationErrors, error)
	Delete func(ctx context.Context, pk PK, id ID) (ValidationErrors, error)
}

func (v ValidatorFuncs[PK, ID, D]) ValidatePut(ctx context.Context, pk PK, id ID, doc D) (ValidationErrors, error) {
	if v.Put == nil {
		return nil, nil
	}
	return v.Put(ctx, pk, id, doc)
}

func (v ValidatorFuncs[PK, ID, D]) ValidateDelete(ctx context.Context, pk PK, id ID) (ValidationErrors, error) {
	if v.Delete == nil {
		return nil, nil
	}
	return v.Delete(ctx, pk, id)
}

// IDValidatorFuncs is the id-arity validator base. The partition key is
// discarded, so it serves stores built with KeyID and KeyIDPartitioned.
type IDValidatorFuncs[ID, D any] struct {
	Put    func(ctx context.Context, id ID, doc D) (ValidationErrors, error)
	Delete func(ctx context.Context, id ID) (ValidationErrors, error)
}

func (v IDValidatorFuncs[ID, D]) ValidatePut(ctx context.Context, _ string, id ID, doc D) (ValidationErrors, error) {
	if v.Put == nil {
		return nil, nil
	}
	return v.Put(ctx, id, doc)
}

func (v IDValidatorFuncs[ID, D]) ValidateDelete(ctx context.Context, _ string, id ID) (ValidationErrors, error) {
	if v.Delete == nil {
		return nil, nil
	}
	return v.Delete(ctx, id)
}

// SingletonValidatorFuncs is the singleton validator base. Both keys are
// discarded.
type SingletonValidatorFuncs[D any] struct {
	Put    func(ctx context.Context, doc D) (ValidationErrors, error)
	Delete func(ctx context.Context) (ValidationErrors, error)
}

func (v SingletonValidatorFuncs[D]) ValidatePut(ctx context.Context, _, _ string, doc D) (ValidationErrors, error) {
	if v.Put == nil {
		return nil, nil
	}
	return v.Put(ctx, doc)
}

func (v SingletonValidatorFuncs[D]) ValidateDelete(ctx context.Context, _, _ string) (ValidationErrors, error) {
	if v.Delete == nil {
		return nil, nil
	}
	return v.Delete(ctx)
}

var (
	structValidate     *validator.Validate
	structValidateOnce sync.Once
)

func getStructValidator() *validator.Validate {
	structValidateOnce.Do(func() {
		structValidate = validator.New(validator.WithRequiredStructEnabled())

		// Report fields under their stored attribute names.
		structValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("dynamodbav"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return structValidate
}

// StructValidator checks documents against their `validate` struct tags.
// Documents that are not structs, or pointers to structs, always pass.
// Deletes always pass.
type StructValidator[PK, ID, D any] struct{}

func (StructValidator[PK, ID, D]) ValidatePut(ctx context.Context, _ PK, _ ID, doc D) (ValidationErrors, error) {
	return ValidateStruct(ctx, doc)
}

func (StructValidator[PK, ID, D]) ValidateDelete(context.Context, PK, ID) (ValidationErrors, error) {
	return nil, nil
}

// ValidateStruct runs tag validation on doc and converts the failures into
// ValidationErrors.
func ValidateStruct(ctx context.Context, doc any) (ValidationErrors, error) {
	rv := reflect.ValueOf(doc)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, nil
	}

	err := getStructValidator().StructCtx(ctx, rv.Interface())
	if err == nil {
		return nil, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}

	var errs ValidationErrors
	for _, e := range fieldErrs {
		errs = errs.Add(e.Field(), describeTag(e))
	}
	return errs, nil
}

func describeTag(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + e.Tag() + " validation"
	}
}
