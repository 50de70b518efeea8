package crm

import (
	"net/mail"
	"strings"

	"github.com/pitabwire/crmdesk/model"
)

// ValidateClient checks a client form. Name is required; a non-empty email
// must parse as an address.
func ValidateClient(in model.ClientInput) error {
	var fields []model.FieldError
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, required("name"))
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			fields = append(fields, model.FieldError{Field: "email", Code: "invalid", Message: "is not a valid email address"})
		}
	}
	if len(fields) > 0 {
		return &model.ValidationGapError{Resource: "client", Fields: fields}
	}
	return nil
}

// ValidateDeal checks a deal form. Title is required, the amount must not be
// negative and a deadline, when given, must be a date.
func ValidateDeal(in model.DealInput) error {
	var fields []model.FieldError
	if strings.TrimSpace(in.Title) == "" {
		fields = append(fields, required("title"))
	}
	if in.Amount < 0 {
		fields = append(fields, model.FieldError{Field: "amount", Code: "invalid", Message: "must not be negative"})
	}
	if d := strings.TrimSpace(in.Deadline); d != "" {
		if _, ok := model.ParseTimestamp(d); !ok {
			fields = append(fields, model.FieldError{Field: "deadline", Code: "invalid", Message: "is not a date"})
		}
	}
	if len(fields) > 0 {
		return &model.ValidationGapError{Resource: "deal", Fields: fields}
	}
	return nil
}

func required(field string) model.FieldError {
	return model.FieldError{Field: field, Code: "required", Message: "is required"}
}
