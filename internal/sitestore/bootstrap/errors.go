package bootstrap

import (
	"fmt"

	"github.com/tansive/sitestore/internal/common/apperrors"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/pkg/types"
)

// StepError reports the step a bootstrap stopped at. Nothing is rolled back: Committed
// documents from earlier steps, and from the failing step itself, remain in the database.
//
// A StepError always matches dberror.ErrBootstrap; it also matches dberror.ErrPartialBootstrap
// when Committed > 0, i.e. the site exists but is not fully initialized.
type StepError struct {
	SiteId    types.SiteId
	Step      string
	Committed int
	Err       error
}

func (e *StepError) Error() string {
	state := "nothing committed"
	if e.Committed > 0 {
		state = fmt.Sprintf("%d documents committed", e.Committed)
	}
	return fmt.Sprintf("bootstrap of site %s failed at step %s (%s): %v", e.SiteId, e.Step, state, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	switch target {
	case dberror.ErrBootstrap:
		return true
	case dberror.ErrPartialBootstrap:
		return e.Committed > 0
	}
	return false
}

// Partial reports whether the failed bootstrap left documents behind.
func (e *StepError) Partial() bool {
	return e.Committed > 0
}

// Kind is apperrors.KindPartial once anything was committed, otherwise the kind of the cause.
func (e *StepError) Kind() apperrors.Kind {
	if e.Committed > 0 {
		return apperrors.KindPartial
	}
	return apperrors.KindOf(e.Err)
}
