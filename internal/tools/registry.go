// Package tools is the fixed set of schema-validated lookups the model may
// call while answering a housing question.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/storage"
)

// GenericToolError is the only failure text the model and the user see for
// execution errors. The cause is logged.
const GenericToolError = "failed to get data, please try again"

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 10 * time.Second

// Kind identifies one tool in the closed set. Adding a kind without a
// builder case makes New fail.
type Kind int

const (
	KindAvailableRegions Kind = iota
	KindHousePrices
	KindHousePricesByMonth
	KindRentPrices
	KindAffordableRegions
	KindMatchRegion
	KindGenerateChart

	kindCount
)

// Kinds returns every tool kind in registration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// String returns the model-facing tool name.
func (k Kind) String() string {
	switch k {
	case KindAvailableRegions:
		return "getAvailableRegions"
	case KindHousePrices:
		return "getHousePrices"
	case KindHousePricesByMonth:
		return "getHousePricesByMonth"
	case KindRentPrices:
		return "getRentPrices"
	case KindAffordableRegions:
		return "findAffordableRegions"
	case KindMatchRegion:
		return "matchRegion"
	case KindGenerateChart:
		return "generateChart"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type execFunc func(ctx context.Context, args map[string]any) (any, error)

// Definition describes one tool. Description is model-facing documentation
// only; Schema is enforced before execute runs.
type Definition struct {
	Kind        Kind
	Name        string
	Description string
	Schema      *Schema

	execute execFunc
}

// Result is the outcome of one tool call. Exactly one of Output and
// ErrorText is set.
type Result struct {
	Output    json.RawMessage
	ErrorText string
	// Err is the underlying *domain.ValidationError or
	// *domain.ToolExecutionError for error outcomes.
	Err error
}

// IsError reports whether the call produced an error outcome.
func (r Result) IsError() bool { return r.ErrorText != "" }

// Deps are the collaborators tool implementations read from.
type Deps struct {
	Prices storage.PriceStore
}

// Registry maps tool names to definitions. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	defs    map[string]*Definition
	order   []string
	timeout time.Duration
	logger  *slog.Logger
	kinds   []Kind
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds each execution.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger used for execution failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithKinds restricts the registry to a subset of tools.
func WithKinds(kinds ...Kind) Option {
	return func(r *Registry) { r.kinds = kinds }
}

func newRegistry(opts ...Option) *Registry {
	r := &Registry{
		defs:    make(map[string]*Definition),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// New builds the registry of every tool kind.
func New(deps Deps, opts ...Option) (*Registry, error) {
	r := newRegistry(opts...)
	kinds := r.kinds
	if kinds == nil {
		kinds = Kinds()
	}
	for _, k := range kinds {
		def, err := build(k, deps)
		if err != nil {
			return nil, err
		}
		if err := r.register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Empty returns a registry with no tools.
func Empty() *Registry {
	return newRegistry()
}

func (r *Registry) register(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	if def.Schema == nil {
		def.Schema = Object(nil)
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Len returns the number of tools.
func (r *Registry) Len() int { return len(r.order) }

// Definitions returns the tools in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.defs[name])
	}
	return out
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, false
	}
	return *def, true
}

// Execute validates raw against the tool's schema and runs it. Validation
// failures never reach the implementation. No error escapes: every failure
// becomes an error outcome.
func (r *Registry) Execute(ctx context.Context, name string, raw json.RawMessage) Result {
	def, ok := r.defs[name]
	if !ok {
		verr := &domain.ValidationError{Tool: name, Message: "unknown tool"}
		return Result{ErrorText: verr.Error(), Err: verr}
	}

	args, err := def.Schema.Validate(raw)
	if err != nil {
		verr := &domain.ValidationError{Tool: name, Message: err.Error()}
		var ferr *fieldError
		if errors.As(err, &ferr) {
			verr.Field, verr.Message = ferr.path, ferr.msg
		}
		return Result{ErrorText: verr.Error(), Err: verr}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := run(ctx, def.execute, args)
	if err == nil {
		var b []byte
		b, err = json.Marshal(out)
		if err == nil {
			return Result{Output: b}
		}
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return Result{ErrorText: verr.Error(), Err: verr}
	}

	r.logger.ErrorContext(ctx, "tool execution failed",
		slog.String("tool", name),
		slog.String("error", err.Error()),
	)
	return Result{ErrorText: GenericToolError, Err: &domain.ToolExecutionError{Tool: name, Err: err}}
}

func run(ctx context.Context, fn execFunc, args map[string]any) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, args)
}

// typed adapts a handler over a concrete input struct. The validated
// argument map is re-encoded and decoded into In.
func typed[In any](name string, fn func(context.Context, In) (any, error)) execFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in In
		b, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &in); err != nil {
			return nil, &domain.ValidationError{Tool: name, Message: err.Error()}
		}
		return fn(ctx, in)
	}
}
