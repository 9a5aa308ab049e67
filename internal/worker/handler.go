package worker

import (
	"context"
	"errors"

	"github.com/DukeRupert/sitetier/internal/domain"
)

// JobHandler runs one job type. Handle receives the job's JSON payload and a
// context bounded by Config.JobTimeout. Returned errors are passed through
// Classify, so handlers may return domain errors as they are.
type JobHandler interface {
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// permanentCodes are the domain error codes a retry cannot change: the site
// no longer exists or the job itself is malformed.
var permanentCodes = map[string]bool{
	domain.ENOTFOUND: true,
	domain.EINVALID:  true,
}

// PermanentError is a job failure recorded as failed without further
// attempts. Code is the domain error code that made it permanent.
type PermanentError struct {
	Code string
	Err  error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError marks err as not worth retrying, keeping its domain code.
func NewPermanentError(err error) error {
	return &PermanentError{Code: domain.ErrorCode(err), Err: err}
}

// Classify marks err permanent when its domain code is one a retry cannot
// fix. Anything else, including delivery failures and unknown errors, is
// returned unchanged and retried.
func Classify(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	if code := domain.ErrorCode(err); permanentCodes[code] {
		return &PermanentError{Code: code, Err: err}
	}
	return err
}

// IsPermanent reports whether err, or any error it wraps, is a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// PermanentCode returns the code of the first PermanentError in err's chain,
// or "" when the failure is retryable.
func PermanentCode(err error) string {
	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return permErr.Code
	}
	return ""
}
