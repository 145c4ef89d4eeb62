package policy

import (
	"context"
	"fmt"

	"github.com/CerberHQ/cerber/internal"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/policy/expressions"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// DeviceRule is a compiled device rule ready for evaluation against a
// client descriptor and network origin.
type DeviceRule struct {
	Name    string
	Action  config.Action
	Weight  int
	src     string
	program cel.Program
}

func NewDeviceRule(cfg config.DeviceRule) (*DeviceRule, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}

	env, err := expressions.NewEnvironment()
	if err != nil {
		return nil, err
	}

	var src string
	var ast *cel.Ast

	if cfg.Expression.Expression != "" {
		src = cfg.Expression.Expression
		var iss *cel.Issues
		interm, iss := env.Compile(src)
		if iss != nil {
			return nil, iss.Err()
		}

		ast, iss = env.Check(interm)
		if iss != nil {
			return nil, iss.Err()
		}
	}

	if len(cfg.Expression.All) != 0 {
		ast, err = expressions.Join(env, expressions.JoinAnd, cfg.Expression.All...)
	}

	if len(cfg.Expression.Any) != 0 {
		ast, err = expressions.Join(env, expressions.JoinOr, cfg.Expression.Any...)
	}

	if err != nil {
		return nil, err
	}

	if ast != nil && src == "" {
		src, _ = cel.AstToString(ast)
	}

	program, err := expressions.Compile(env, ast)
	if err != nil {
		return nil, fmt.Errorf("can't compile CEL program for rule %q: %w", cfg.Name, err)
	}

	return &DeviceRule{
		Name:    cfg.Name,
		Action:  cfg.Action,
		Weight:  cfg.Weight,
		src:     src,
		program: program,
	}, nil
}

func (dr *DeviceRule) Hash() string {
	return internal.SHA256sum(dr.src)
}

// Check evaluates the rule. Evaluation errors count as no match so a
// single bad descriptor can't wedge scoring.
func (dr *DeviceRule) Check(ctx context.Context, descriptor, origin string) (bool, error) {
	result, _, err := dr.program.ContextEval(ctx, &DeviceActivation{
		Descriptor: descriptor,
		Origin:     origin,
	})
	if err != nil {
		return false, err
	}

	if val, ok := result.(types.Bool); ok {
		return bool(val), nil
	}

	return false, nil
}

// DeviceActivation exposes the scoring inputs to CEL programs.
type DeviceActivation struct {
	Descriptor string
	Origin     string
}

func (da *DeviceActivation) Parent() cel.Activation { return nil }

func (da *DeviceActivation) ResolveName(name string) (any, bool) {
	switch name {
	case "userAgent":
		return da.Descriptor, true
	case "origin":
		return da.Origin, true
	default:
		return nil, false
	}
}
