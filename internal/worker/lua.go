package worker

import (
	"context"
	"fmt"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
)

// LuaInvoker returns an InvokeFunc that runs the Lua script at scriptPath,
// calling its global invoke(args) function with the resolved arguments as
// a table. The script must return a string. The interpreter is bound to
// the call context, so cancelling the context (the hard timeout for
// long-running tools) aborts the script mid-execution.
func LuaInvoker(scriptPath string) InvokeFunc {
	return func(ctx context.Context, args map[string]string) (ToolOutput, error) {
		lState := lua.NewState()
		defer lState.Close()
		lState.SetContext(ctx)

		absPath, err := filepath.Abs(scriptPath)
		if err != nil {
			return ToolOutput{}, fmt.Errorf("script path: %w", err)
		}
		if err := lState.DoFile(absPath); err != nil {
			return ToolOutput{}, fmt.Errorf("load script: %w", err)
		}

		fn := lState.GetGlobal("invoke")
		if fn.Type() != lua.LTFunction {
			return ToolOutput{}, fmt.Errorf("script must define global function invoke(args), got %s", fn.Type().String())
		}

		tbl := lState.NewTable()
		for k, v := range args {
			lState.SetField(tbl, k, lua.LString(v))
		}

		lState.Push(fn)
		lState.Push(tbl)
		if err := lState.PCall(1, 1, nil); err != nil {
			if ctx.Err() != nil {
				return ToolOutput{}, ctx.Err()
			}
			return ToolOutput{}, fmt.Errorf("invoke(): %w", err)
		}

		ret := lState.Get(-1)
		lState.Pop(1)
		if ret.Type() != lua.LTString {
			return ToolOutput{}, fmt.Errorf("invoke() must return a string, got %s", ret.Type().String())
		}
		return ToolOutput{Text: ret.String()}, nil
	}
}
