package dberror

import (
	"github.com/tansive/sitestore/internal/common/apperrors"
)

// Errors raised by the data layer. Driver errors are attached with Err/MsgErr and stay
// reachable through errors.Is and errors.As.
var (
	ErrDatabase      apperrors.Error = apperrors.New("db error")
	ErrConnectivity  apperrors.Error = ErrDatabase.New("unable to connect to database").SetKind(apperrors.KindConnectivity)
	ErrNotFound      apperrors.Error = ErrDatabase.New("not found").SetKind(apperrors.KindNotFound)
	ErrAlreadyExists apperrors.Error = ErrDatabase.New("already exists").SetKind(apperrors.KindConflict)
	ErrInvalidInput  apperrors.Error = ErrDatabase.New("invalid input").SetKind(apperrors.KindInvalidInput)
	ErrValidation    apperrors.Error = ErrInvalidInput.New("document failed validation")
	ErrInvalidSiteID apperrors.Error = ErrInvalidInput.New("invalid site id")

	// Configuration errors are programming mistakes and must surface loudly.
	ErrConfiguration     apperrors.Error = ErrDatabase.New("configuration error").SetKind(apperrors.KindConfiguration)
	ErrUnknownEntity     apperrors.Error = ErrConfiguration.New("unknown entity")
	ErrInvalidDefinition apperrors.Error = ErrConfiguration.New("invalid entity definition")

	// ErrBootstrap matches every bootstrap failure; ErrPartialBootstrap only those that left
	// committed documents behind.
	ErrBootstrap        apperrors.Error = ErrDatabase.New("site bootstrap failed")
	ErrPartialBootstrap apperrors.Error = ErrBootstrap.New("site bootstrap partially applied").SetKind(apperrors.KindPartial)
)

var ErrConnClosed apperrors.Error = ErrDatabase.New("connection closed")
