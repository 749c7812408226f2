// internal/automation/failure.go
package automation

import (
	"errors"
	"fmt"
)

// Stage identifies where in an automation step a failure happened.
type Stage string

const (
	StageNavigation Stage = "navigation"
	StageLookup     Stage = "lookup"
	StageClick      Stage = "click"
	StageIO         Stage = "io"
)

// Failure is the single failure currency for best-effort browser work.
// Callers log it and move on; the run never aborts because of one. Tests
// assert on the stage rather than on log output.
type Failure struct {
	Stage Stage
	Op    string
	Err   error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Stage, f.Op)
	}
	return fmt.Sprintf("%s: %s: %v", f.Stage, f.Op, f.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As chains.
func (f *Failure) Unwrap() error { return f.Err }

// NavigationFailed tags a page navigation or reload failure.
func NavigationFailed(op string, err error) *Failure {
	return &Failure{Stage: StageNavigation, Op: op, Err: err}
}

// LookupFailed tags a selector or frame resolution failure, including the
// zero-match case where a locator resolves but nothing is behind it.
func LookupFailed(op string, err error) *Failure {
	return &Failure{Stage: StageLookup, Op: op, Err: err}
}

// ClickFailed tags an interaction failure on an element that was found.
func ClickFailed(op string, err error) *Failure {
	return &Failure{Stage: StageClick, Op: op, Err: err}
}

// IOFailed tags filesystem and serialization failures (cookie jar reads and
// writes, cookie injection).
func IOFailed(op string, err error) *Failure {
	return &Failure{Stage: StageIO, Op: op, Err: err}
}

// StageOf extracts the stage carried anywhere in err's chain. It returns ""
// when no Failure is present.
func StageOf(err error) Stage {
	var f *Failure
	if errors.As(err, &f) {
		return f.Stage
	}
	return ""
}
