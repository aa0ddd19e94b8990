package debugger

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-delve/delve/service/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Location is where the target is run to before a capture.
type Location struct {
	File     string // For file:line locations
	Line     int    // For file:line locations
	Function string // For function locations
}

// ParseLocation parses "file.go:line", "func:name" or a bare function name.
func ParseLocation(location string) (Location, error) {
	if location == "" {
		return Location{}, errors.New("empty breakpoint location")
	}
	if name, ok := strings.CutPrefix(location, "func:"); ok {
		return Location{Function: name}, nil
	}
	if i := strings.LastIndex(location, ":"); i > 0 {
		line, err := strconv.Atoi(location[i+1:])
		if err != nil || line <= 0 {
			return Location{}, errors.Errorf("invalid line number in location %q", location)
		}
		return Location{File: location[:i], Line: line}, nil
	}
	return Location{Function: location}, nil
}

func (l Location) String() string {
	if l.Function != "" {
		return l.Function
	}
	return l.File + ":" + strconv.Itoa(l.Line)
}

// RunTo sets a breakpoint at location and continues the target until it stops there.
func (d *DelveDebugger) RunTo(location Location) (*api.DebuggerState, error) {
	var err error
	var bp *api.Breakpoint
	if location.Function != "" {
		bp, err = d.SetFunctionBreakpoint(location.Function)
	} else {
		bp, err = d.SetBreakpoint(location.File, location.Line)
	}
	if err != nil {
		return nil, err
	}
	d.log.Info("Breakpoint set", zap.Int("id", bp.ID), zap.String("location", location.String()))

	state, err := d.Continue()
	if err != nil {
		return nil, errors.Wrapf(err, "running to %s failed", location)
	}
	return state, nil
}

// SetBreakpoint sets a breakpoint at the specified location using RPC
func (d *DelveDebugger) SetBreakpoint(file string, line int) (*api.Breakpoint, error) {
	// Normalize file path (for Windows compatibility)
	file = filepath.ToSlash(file)

	createdBp, err := d.client.CreateBreakpoint(&api.Breakpoint{File: file, Line: line})
	if err != nil {
		return nil, errors.Wrapf(err, "could not set breakpoint at %s:%d", file, line)
	}
	return createdBp, nil
}

// SetFunctionBreakpoint sets a breakpoint at a function
func (d *DelveDebugger) SetFunctionBreakpoint(funcName string) (*api.Breakpoint, error) {
	createdBp, err := d.client.CreateBreakpoint(&api.Breakpoint{FunctionName: funcName})
	if err == nil {
		return createdBp, nil
	}

	// If the exact function name didn't work, try with package prefix variations
	if strings.Contains(err.Error(), "could not find function") && !strings.HasPrefix(funcName, "main.") {
		altFuncName := "main." + funcName
		if altCreated, altErr := d.client.CreateBreakpoint(&api.Breakpoint{FunctionName: altFuncName}); altErr == nil {
			d.log.Info("Using package-qualified function", zap.String("function", altFuncName))
			return altCreated, nil
		}

		funcs, _ := d.client.ListFunctions(funcName, 0)
		if len(funcs) > 5 {
			funcs = funcs[:5]
		}
		if len(funcs) > 0 {
			return nil, errors.Errorf("could not set breakpoint at function %s: %v\nDid you mean one of these functions?\n%s",
				funcName, err, strings.Join(funcs, "\n"))
		}
	}

	return nil, errors.Wrapf(err, "could not set breakpoint at function %s", funcName)
}
