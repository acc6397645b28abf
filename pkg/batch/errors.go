package batch

import "fmt"

// OrchestrationFault marks a failure in the orchestration
// infrastructure itself (store unreachable, scheduler could not
// start). It is the only error class that fails a batch; per-item
// errors are recorded as data on the item and never escalate.
type OrchestrationFault struct {
	Op  string
	Err error
}

func (f *OrchestrationFault) Error() string {
	return fmt.Sprintf("orchestration fault during %s: %v", f.Op, f.Err)
}

func (f *OrchestrationFault) Unwrap() error {
	return f.Err
}

// Fault wraps err as an OrchestrationFault for the named operation.
func Fault(op string, err error) *OrchestrationFault {
	return &OrchestrationFault{Op: op, Err: err}
}
