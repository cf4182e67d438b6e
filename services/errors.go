package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrForbidden действие недоступно роли пользователя
	ErrForbidden = errors.New("недостаточно прав")
	// ErrUnknownTag неизвестный вид метки
	ErrUnknownTag = errors.New("неизвестный вид метки")
)

// ValidationError ошибка проверки входных данных
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// newValidationError создает ошибку проверки из готовых сообщений
func newValidationError(messages ...string) error {
	return &ValidationError{Messages: messages}
}

// validateStruct проверяет DTO и переводит ошибки validator в сообщения по полям
func validateStruct(v *validator.Validate, dto interface{}) error {
	err := v.Struct(dto)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	var errorMessages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			errorMessages = append(errorMessages, "поле "+e.Field()+" обязательно")
		case "gt":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть больше "+e.Param())
		case "min":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть не меньше "+e.Param())
		case "max":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть не больше "+e.Param())
		case "oneof":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть одним из: "+e.Param())
		case "email":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть email")
		default:
			errorMessages = append(errorMessages, "поле "+e.Field()+" заполнено неверно")
		}
	}
	return &ValidationError{Messages: errorMessages}
}
