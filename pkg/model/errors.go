package model

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures so that callers can branch on the category
// instead of matching messages. Validation and NotFound are terminal,
// Conflict is retried internally by the use cases, Unavailable should be
// retried by the caller's job runner.
var (
	TagValidation  = goerr.NewTag("validation")
	TagNotFound    = goerr.NewTag("not_found")
	TagConflict    = goerr.NewTag("conflict")
	TagUnavailable = goerr.NewTag("unavailable")
)

// IsValidation reports whether err is a malformed-input error.
func IsValidation(err error) bool {
	return goerr.HasTag(err, TagValidation)
}

// IsNotFound reports whether err means a referenced record is absent.
func IsNotFound(err error) bool {
	return goerr.HasTag(err, TagNotFound)
}

// IsConflict reports whether err is a lost compare-and-set race.
func IsConflict(err error) bool {
	return goerr.HasTag(err, TagConflict)
}

// IsUnavailable reports whether err means an external store is unreachable.
func IsUnavailable(err error) bool {
	return goerr.HasTag(err, TagUnavailable)
}
