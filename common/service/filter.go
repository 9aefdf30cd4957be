package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/boxops/portal/common/models"
	"github.com/google/cel-go/cel"
)

// SubscriberFilter selects subscribers with a CEL expression over the
// "subscriber" variable. Compiled programs are cached by expression.
type SubscriberFilter struct {
	env   *cel.Env
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewSubscriberFilter creates a filter with an empty program cache
func NewSubscriberFilter() (*SubscriberFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("subscriber", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &SubscriberFilter{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Compile validates an expression and caches its program. An empty expression matches everything.
func (f *SubscriberFilter) Compile(expr string) error {
	_, err := f.program(expr)
	return err
}

// Match evaluates expr against a subscriber
func (f *SubscriberFilter) Match(expr string, sub *models.Subscriber) (bool, error) {
	prg, err := f.program(expr)
	if err != nil {
		return false, err
	}
	if prg == nil {
		return true, nil
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"subscriber": subscriberVars(sub),
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

// CacheSize returns the number of cached expressions
func (f *SubscriberFilter) CacheSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

func (f *SubscriberFilter) program(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	f.mu.RLock()
	prg, exists := f.cache[expr]
	f.mu.RUnlock()
	if exists {
		return prg, nil
	}

	ast, issues := f.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidFilter, out)
	}

	prg, err := f.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	f.mu.Lock()
	f.cache[expr] = prg
	f.mu.Unlock()

	return prg, nil
}

func subscriberVars(sub *models.Subscriber) map[string]interface{} {
	return map[string]interface{}{
		"id":                       sub.ID.String(),
		"email":                    sub.Email,
		"platform_customer_id":     sub.PlatformCustomerID,
		"migration_status":         string(sub.MigrationStatus),
		"current_product_sequence": int64(sub.CurrentProductSequence),
	}
}
