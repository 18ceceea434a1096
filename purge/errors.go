package purge

import (
	"encoding/json"
	"fmt"
)

type errCategory uint8

const (
	keyEvaluationErr errCategory = iota + 1
	lookupErr
	fileDeleteErr
	fileReadErr
)

func (cat errCategory) String() string {
	switch cat {
	case keyEvaluationErr:
		return "key evaluation"
	case lookupErr:
		return "lookup"
	case fileDeleteErr:
		return "file delete"
	case fileReadErr:
		return "file read"
	default:
		return "unknown"
	}
}

type KV map[string]interface{}

// ErrWithCategory classifies purge failures. Only key evaluation and
// lookup errors ever reach a caller, file errors are logged.
type ErrWithCategory struct {
	cat     errCategory
	message string
	cause   error
	extra   KV
}

func newCategoryError(cat errCategory, message string, cause error, extra KV) error {
	return &ErrWithCategory{cat: cat, message: message, cause: cause, extra: extra}
}

func KeyEvaluationError(cause error) error {
	return newCategoryError(keyEvaluationErr, "failed to evaluate cache key", cause, nil)
}

func LookupError(message string, cause error, extra KV) error {
	return newCategoryError(lookupErr, message, cause, extra)
}

func FileDeleteError(path string, cause error) error {
	return newCategoryError(fileDeleteErr, "failed to delete cache file", cause, KV{"path": path})
}

func FileReadError(path string, cause error) error {
	return newCategoryError(fileReadErr, "failed to read cache file", cause, KV{"path": path})
}

func errorIs(err error, cat errCategory) bool {
	if catErr, ok := err.(*ErrWithCategory); ok {
		return catErr.cat == cat
	}
	return false
}

func IsKeyEvaluationError(err error) bool { return errorIs(err, keyEvaluationErr) }
func IsLookupError(err error) bool        { return errorIs(err, lookupErr) }
func IsFileDeleteError(err error) bool    { return errorIs(err, fileDeleteErr) }
func IsFileReadError(err error) bool      { return errorIs(err, fileReadErr) }

func (err *ErrWithCategory) Error() string {
	if err.cause == nil {
		return err.message
	}
	return fmt.Sprintf("%s: %v", err.message, err.cause)
}

func (err *ErrWithCategory) Unwrap() error {
	return err.cause
}

func (err *ErrWithCategory) Category() string {
	return err.cat.String()
}

func (err *ErrWithCategory) Extra() KV {
	return err.extra
}

func (err *ErrWithCategory) MarshalJSON() ([]byte, error) {
	data := KV{
		"error":    err.message, // omit cause, could leak internal data
		"category": err.cat.String(),
	}
	for k, v := range err.extra {
		if k != "error" && k != "category" {
			data[k] = v
		}
	}
	return json.Marshal(data)
}
