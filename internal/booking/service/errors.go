package service

import (
	"context"
	"errors"

	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/sentinel"
)

// ErrSlotTaken is returned when the slot already holds a live booking.
var ErrSlotTaken = dErrors.New(dErrors.CodeConflict, "slot_taken")

func storeError(err error, action string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "booking not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "booking store did not answer in time")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "booking store is unavailable, try again later")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return "claimed"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	}
	switch dErrors.GetCode(err) {
	case dErrors.CodeInvalidInput, dErrors.CodeValidation, dErrors.CodeBadRequest:
		return "invalid"
	case dErrors.CodeTimeout:
		return "timeout"
	case dErrors.CodeUnavailable:
		return "unavailable"
	}
	return "error"
}
