package service

import (
	"context"
	"errors"

	"carebook/internal/integrity/canonical"
	"carebook/internal/integrity/ledger"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/sentinel"
)

// storeError translates record store facts into domain errors. Errors that
// already carry a domain code (from model validation) pass through.
func storeError(err error, action string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "record id already exists")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "record store did not answer in time")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
}

// ledgerError keeps "a different proof exists" distinct from "the ledger
// could not be asked".
func ledgerError(err error) error {
	switch ledger.GetCategory(err) {
	case ledger.CategoryAlreadyPublished:
		return dErrors.Wrap(err, dErrors.CodeConflict, "a different fingerprint is already published for this record")
	case ledger.CategoryUnavailable, ledger.CategoryTimeout:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "integrity ledger is unavailable, try again later")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled before the ledger answered")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish fingerprint")
}

func encodingError(err error) error {
	var encErr *canonical.EncodingError
	if errors.As(err, &encErr) {
		return dErrors.Wrap(err, dErrors.CodeValidation, encErr.Error())
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, "record fields are invalid")
}
