// Package batch describes per-record outcomes of a pipeline page.
package batch

// ItemStatus is the processing outcome of a single record.
type ItemStatus string

// Record status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of embedding one record.
type Result struct {
	id       string
	status   ItemStatus
	attempts int
	err      error
}

// NewOK creates a successful result.
func NewOK(id string, attempts int) Result {
	return Result{id: id, status: StatusOK, attempts: attempts}
}

// NewError creates a failed result.
func NewError(id string, attempts int, err error) Result {
	return Result{id: id, status: StatusError, attempts: attempts, err: err}
}

// ID returns the record identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Attempts returns how many generation attempts were made.
func (r Result) Attempts() int { return r.attempts }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// OK reports whether the record was embedded.
func (r Result) OK() bool { return r.status == StatusOK }
