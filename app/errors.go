package app

import (
	stderrors "errors"

	"genescore/domain/core"
	"genescore/internal/errors"
)

// classify attaches an AppError code to domain errors so transports can map
// them without knowing the sentinels
func classify(err error) error {
	if err == nil || errors.IsAppError(err) {
		return err
	}
	switch {
	case stderrors.Is(err, core.ErrNotFound):
		return errors.WithCode(errors.CodeNotFound, err)
	case stderrors.Is(err, core.ErrDuplicateSource), stderrors.Is(err, core.ErrDuplicateDisplayName):
		return errors.WithCode(errors.CodeConflict, err)
	case stderrors.Is(err, core.ErrInvalidRule), stderrors.Is(err, core.ErrValidation):
		return errors.WithCode(errors.CodeValidationError, err)
	}
	return errors.WithCode(errors.CodeInternalError, err)
}
