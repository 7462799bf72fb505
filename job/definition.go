package job

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/xraph/chrono/codec"
	"github.com/xraph/chrono/trigger"
)

// HandlerFunc is a type-erased job handler. Definitions built with New wrap
// the typed handler in a HandlerFunc that decodes input into T first.
type HandlerFunc func(ctx context.Context, input any) (*Result, error)

// Definition is the static configuration of one job. It is built once at
// startup and treated as immutable once registered.
type Definition struct {
	ID          string
	Description string

	Handler HandlerFunc

	// InputType is the handler's input type, for diagnostics.
	InputType reflect.Type

	// NewInput builds a default input. It is nil when no default exists,
	// which is the case for interface-typed inputs.
	NewInput func() any

	// Input is the static input passed when the trigger fires.
	Input any

	Trigger trigger.Trigger
	Retry   *RetryPolicy
	Timeout time.Duration

	Lock    bool
	LockKey string

	OnSuccess []string
	OnFailure []string

	Tags     []string
	Metadata map[string]string

	// Misfire overrides the engine-wide misfire handling default.
	Misfire *bool
}

// New builds a Definition around a typed handler. Input reaching the
// handler may be a T, a codec.Raw read back from a store, raw JSON, or a
// generic decoded value such as map[string]any; all are converted to T.
func New[T any](id string, fn func(ctx context.Context, in T) (*Result, error), opts ...Option) *Definition {
	def := &Definition{
		ID:        id,
		InputType: reflect.TypeFor[T](),
		NewInput:  defaultFactory[T](),
	}
	def.Handler = func(ctx context.Context, input any) (*Result, error) {
		in, err := decodeInput[T](input, def.NewInput)
		if err != nil {
			return nil, fmt.Errorf("job %q: decode input: %w", id, err)
		}
		return fn(ctx, in)
	}
	for _, opt := range opts {
		opt(def)
	}
	return def
}

// LockName returns the key the job locks on.
func (d *Definition) LockName() string {
	if d.LockKey != "" {
		return d.LockKey
	}
	return d.ID
}

// MisfireEnabled reports whether misfired occurrences should still run.
func (d *Definition) MisfireEnabled(fallback bool) bool {
	if d.Misfire != nil {
		return *d.Misfire
	}
	return fallback
}

// TriggerInput returns the input for a trigger-fired dispatch: the static
// Input when set, else a default instance. ok is false when neither exists.
func (d *Definition) TriggerInput() (input any, ok bool) {
	if d.Input != nil {
		return d.Input, true
	}
	if d.NewInput != nil {
		return d.NewInput(), true
	}
	return nil, false
}

// MaxAttempts returns the attempt budget, 1 without a retry policy.
func (d *Definition) MaxAttempts() int {
	if d.Retry == nil || d.Retry.MaxAttempts < 1 {
		return 1
	}
	return d.Retry.MaxAttempts
}

func defaultFactory[T any]() func() any {
	t := reflect.TypeFor[T]()
	switch t.Kind() {
	case reflect.Interface:
		return nil
	case reflect.Pointer:
		elem := t.Elem()
		return func() any { return reflect.New(elem).Interface() }
	default:
		return func() any {
			var zero T
			return zero
		}
	}
}

func decodeInput[T any](input any, factory func() any) (T, error) {
	var in T
	switch v := input.(type) {
	case nil:
		if factory != nil {
			in, _ = factory().(T)
		}
		return in, nil
	case T:
		return v, nil
	case codec.Raw:
		err := v.Decode(&in)
		return in, err
	case json.RawMessage:
		err := json.Unmarshal(v, &in)
		return in, err
	case []byte:
		err := json.Unmarshal(v, &in)
		return in, err
	default:
		// Generic values, e.g. a map decoded from an API request body.
		data, err := json.Marshal(v)
		if err != nil {
			return in, err
		}
		err = json.Unmarshal(data, &in)
		return in, err
	}
}

// ──────────────────────────────────────────────────
// Options
// ──────────────────────────────────────────────────

// Option configures a Definition.
type Option func(*Definition)

// WithDescription sets a human-readable description.
func WithDescription(desc string) Option {
	return func(d *Definition) { d.Description = desc }
}

// WithTrigger attaches a time-based trigger.
func WithTrigger(t trigger.Trigger) Option {
	return func(d *Definition) { d.Trigger = t }
}

// WithInput sets the static input used when the trigger fires.
func WithInput(v any) Option {
	return func(d *Definition) { d.Input = v }
}

// WithRetry sets the retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(d *Definition) { d.Retry = &p }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Definition) { d.Timeout = timeout }
}

// WithLock serializes executions of the job through the lock provider.
// The optional key overrides the job ID as the lock name.
func WithLock(key ...string) Option {
	return func(d *Definition) {
		d.Lock = true
		if len(key) > 0 {
			d.LockKey = key[0]
		}
	}
}

// WithOnSuccess chains the given jobs after a successful run.
func WithOnSuccess(jobIDs ...string) Option {
	return func(d *Definition) { d.OnSuccess = append(d.OnSuccess, jobIDs...) }
}

// WithOnFailure chains the given jobs after a failed run.
func WithOnFailure(jobIDs ...string) Option {
	return func(d *Definition) { d.OnFailure = append(d.OnFailure, jobIDs...) }
}

// WithTags labels the job. Tags are copied onto logs and dead letters.
func WithTags(tags ...string) Option {
	return func(d *Definition) { d.Tags = append(d.Tags, tags...) }
}

// WithMetadata adds a free-form key/value pair.
func WithMetadata(key, value string) Option {
	return func(d *Definition) {
		if d.Metadata == nil {
			d.Metadata = make(map[string]string)
		}
		d.Metadata[key] = value
	}
}

// WithMisfireHandling controls whether occurrences detected late still run.
func WithMisfireHandling(enabled bool) Option {
	return func(d *Definition) { d.Misfire = &enabled }
}
