package tools

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/expr-lang/expr"

	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/sandbox"
)

// --- Current Time Tool ---

type CurrentTimeTool struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (t *CurrentTimeTool) Name() string { return "current_time" }

func (t *CurrentTimeTool) Description() string {
	return "Get the current date and time, optionally in an IANA timezone such as Europe/Oslo."
}

func (t *CurrentTimeTool) Parameters() []model.Parameter {
	return []model.Parameter{
		{Name: "timezone", Type: "string", Description: "IANA timezone name. Defaults to UTC."},
	}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, in Input) (string, error) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	loc := time.UTC
	if tz := in.Get("timezone").String(); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
	}
	return now().In(loc).Format(time.RFC3339), nil
}

// --- Calculate Tool ---

// calcEnv holds the names available to calculate expressions in addition to
// the expr builtins.
var calcEnv = map[string]any{
	"pi":    math.Pi,
	"sqrt":  math.Sqrt,
	"pow":   math.Pow,
	"log10": math.Log10,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
}

type CalculateTool struct{}

func (t *CalculateTool) Name() string { return "calculate" }

func (t *CalculateTool) Description() string {
	return "Evaluate an arithmetic expression, e.g. '(2 + 3) * sqrt(16)'. Supports + - * / % ** and functions sqrt, pow, log10, sin, cos, tan, abs, ceil, floor, round, min, max."
}

func (t *CalculateTool) Parameters() []model.Parameter {
	return []model.Parameter{
		{Name: "expression", Type: "string", Description: "The expression to evaluate.", Required: true},
	}
}

func (t *CalculateTool) Execute(ctx context.Context, in Input) (string, error) {
	expression, err := in.String("expression")
	if err != nil {
		return "", err
	}
	program, err := expr.Compile(expression, expr.Env(calcEnv))
	if err != nil {
		return "", fmt.Errorf("invalid expression: %w", err)
	}
	out, err := expr.Run(program, calcEnv)
	if err != nil {
		return "", fmt.Errorf("evaluating expression: %w", err)
	}
	switch v := out.(type) {
	case int, float64, bool:
		return fmt.Sprint(v), nil
	}
	return "", fmt.Errorf("expression did not evaluate to a number: %v", out)
}

// --- Run Python Tool ---

type RunPythonTool struct {
	Sandbox sandbox.Manager
}

func (t *RunPythonTool) Name() string { return "run_python" }

func (t *RunPythonTool) Description() string {
	return "Run a cell of Python code in a persistent IPython kernel. The value of the last expression is displayed. Returns the output of the cell."
}

func (t *RunPythonTool) Parameters() []model.Parameter {
	return []model.Parameter{
		{Name: "code", Type: "string", Description: "The code to run.", Required: true},
	}
}

func (t *RunPythonTool) Execute(ctx context.Context, in Input) (string, error) {
	if t.Sandbox == nil {
		return "", sandbox.ErrUnavailable
	}
	code, err := in.String("code")
	if err != nil {
		return "", err
	}
	slog.Debug("Running cell", "threadID", in.ThreadID, "size", len(code))
	res, err := t.Sandbox.RunCell(ctx, in.ThreadID, code)
	if err != nil {
		return "", fmt.Errorf("running cell: %w", err)
	}
	return res.Text(), nil
}
