package job

import "fmt"

// ValidationError is one finding of Validate.
type ValidationError struct {
	JobID   string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("job: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("job %q: %s: %s", e.JobID, e.Field, e.Message)
}

// Validate statically checks a set of definitions. It is advisory: nothing
// prevents an invalid set from running, and dispatching an unknown id still
// fails at call time.
func Validate(defs []*Definition) []ValidationError {
	var errs []ValidationError

	known := make(map[string]int, len(defs))
	for _, d := range defs {
		if d != nil {
			known[d.ID]++
		}
	}

	for _, d := range defs {
		if d == nil {
			continue
		}
		if d.ID == "" {
			errs = append(errs, ValidationError{Field: "id", Message: "must not be empty"})
			continue
		}
		if known[d.ID] > 1 {
			errs = append(errs, ValidationError{JobID: d.ID, Field: "id", Message: "duplicate job id"})
			known[d.ID] = -1 // report once
		}
		if d.Handler == nil {
			errs = append(errs, ValidationError{JobID: d.ID, Field: "handler", Message: "no handler"})
		}
		for _, target := range d.OnSuccess {
			if known[target] == 0 {
				errs = append(errs, ValidationError{JobID: d.ID, Field: "on_success", Message: fmt.Sprintf("chain target %q is not registered", target)})
			}
		}
		for _, target := range d.OnFailure {
			if known[target] == 0 {
				errs = append(errs, ValidationError{JobID: d.ID, Field: "on_failure", Message: fmt.Sprintf("chain target %q is not registered", target)})
			}
		}
		if d.Retry != nil {
			if err := d.Retry.Validate(); err != nil {
				errs = append(errs, ValidationError{JobID: d.ID, Field: "retry", Message: err.Error()})
			}
		}
		if d.Timeout < 0 {
			errs = append(errs, ValidationError{JobID: d.ID, Field: "timeout", Message: "must not be negative"})
		}
		if d.Trigger != nil {
			if _, ok := d.TriggerInput(); !ok {
				errs = append(errs, ValidationError{
					JobID:   d.ID,
					Field:   "input",
					Message: fmt.Sprintf("triggered job has no static input and %v has no default value", d.InputType),
				})
			}
		}
	}
	return errs
}
