package job

import "errors"

// ErrCycle is the transaction error Exec returns when Verify cannot make
// the transaction's After-ordering graph acyclic without deleting the
// anchor job itself (spec.md §7's Transaction errors: the whole
// transaction is rolled back and the job table is left untouched).
var ErrCycle = errors.New("job: dependency cycle reaches the requested unit")

// DriverError is how a Driver reports a terminal action failure together
// with the Result the job must finish with. Driver lives in this package
// so job never imports unit (see Driver's doc comment); DriverError lets
// unit.Manager carry its ActionErr-to-Result mapping (MapActionErr)
// across that boundary without job needing to know ActionErr exists.
type DriverError struct {
	Result Result
	Err    error
}

func NewDriverError(result Result, err error) *DriverError {
	return &DriverError{Result: result, Err: err}
}

func (e *DriverError) Error() string { return e.Err.Error() }
func (e *DriverError) Unwrap() error { return e.Err }
