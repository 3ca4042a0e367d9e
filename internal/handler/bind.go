package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/makkenzo/entitlement-service/internal/ierr"
)

// bindError keeps validator errors intact for field-level details and wraps
// decoding failures as validation errors.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: invalid request body: %v", ierr.ErrValidation, err)
}
