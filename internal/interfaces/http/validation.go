package http

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jhoicas/stockledger-api/internal/domain"
)

var validate = newValidator()

// newValidator usa los nombres JSON en los errores (items[0].quantity en vez de Items[0].Quantity).
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		}
		return name
	})
	return v
}

// validateStruct valida el DTO y devuelve el primer campo inválido como *domain.ValidationError.
func validateStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return domain.NewValidationError("body", "cuerpo inválido")
	}
	fe := errs[0]
	return domain.NewValidationError(fieldPath(fe), validationMessage(fe))
}

// fieldPath quita el nombre del struct raíz: "CreateTransactionRequest.items[0].quantity" -> "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "es requerido"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "debe tener al menos " + fe.Param() + " elemento(s)"
		}
		return "debe ser al menos " + fe.Param()
	case "max":
		return "debe ser como máximo " + fe.Param()
	case "uuid":
		return "debe ser un UUID"
	case "oneof":
		return "debe ser uno de: " + fe.Param()
	default:
		return "valor inválido"
	}
}
