package ingest

// ReasonError carries an operator-facing halt reason in front of the
// underlying failure. Its message is the reason alone; the cause stays
// reachable through errors.Is and errors.As.
type ReasonError struct {
	Reason string
	Err    error
}

// Reason wraps err with an operator-facing message.
func Reason(reason string, err error) error {
	return &ReasonError{Reason: reason, Err: err}
}

func (e *ReasonError) Error() string {
	return e.Reason
}

func (e *ReasonError) Unwrap() error {
	return e.Err
}
