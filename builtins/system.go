package builtins

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"silo/db"
	"silo/task"
	"silo/types"
)

// builtinGetenv implements getenv(name). Requires wizard permissions.
func builtinGetenv(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	name, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	varName := name.Value()
	value, exists := os.LookupEnv(varName)
	if !exists {
		if varName == "HOME" && runtime.GOOS == "windows" {
			if home, err := os.UserHomeDir(); err == nil && home != "" {
				return types.Ok(types.NewStr(home))
			}
		}
		return types.Ok(types.NewInt(0))
	}
	return types.Ok(types.NewStr(value))
}

// taskOf returns the concrete *task.Task behind ctx.Task, if any.
func taskOf(ctx *types.TaskContext) (*task.Task, bool) {
	if ctx.Task == nil {
		return nil, false
	}
	t, ok := ctx.Task.(*task.Task)
	return t, ok
}

// builtinTaskLocal implements task_local(). Requires wizard permissions.
func builtinTaskLocal(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	if t, ok := taskOf(ctx); ok {
		return types.Ok(t.GetTaskLocal())
	}
	return types.Ok(types.NewEmptyMap())
}

// builtinSetTaskLocal implements set_task_local(value). Requires wizard
// permissions.
func builtinSetTaskLocal(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	if t, ok := taskOf(ctx); ok {
		t.SetTaskLocal(args[0])
	}
	return types.Ok(types.NewInt(0))
}

// builtinTaskID implements task_id(); the result is always a positive
// integer, including at top-level eval where no task record exists.
func builtinTaskID(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	if ctx.TaskID > 0 {
		return types.Ok(types.NewInt(ctx.TaskID))
	}
	if t, ok := taskOf(ctx); ok && t.ID > 0 {
		return types.Ok(types.NewInt(t.ID))
	}
	return types.Ok(types.NewInt(1))
}

// builtinTicksLeft implements ticks_left().
func builtinTicksLeft(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	if ctx.TicksRemaining > 0 {
		return types.Ok(types.NewInt(ctx.TicksRemaining))
	}
	if t, ok := taskOf(ctx); ok {
		if left := t.TicksLeft(); left > 0 {
			return types.Ok(types.NewInt(left))
		}
	}
	return types.Ok(types.NewInt(1))
}

// builtinSecondsLeft implements seconds_left().
func builtinSecondsLeft(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	if t, ok := taskOf(ctx); ok {
		if left := int64(t.SecondsLeft()); left > 0 {
			return types.Ok(types.NewInt(left))
		}
	}
	return types.Ok(types.NewInt(1000))
}

// execHexPair reports whether c1,c2 form a valid hex-digit pair.
func execHexPair(c1, c2 byte) bool {
	isHex := func(c byte) bool {
		return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
	}
	return isHex(c1) && isHex(c2)
}

// isValidBinaryString reports whether s uses only plain bytes and the MOO
// binary-string escape "~XX" (two hex digits).
func isValidBinaryString(s string) bool {
	for i := 0; i < len(s); {
		if s[i] != '~' {
			i++
			continue
		}
		if i+2 >= len(s) || !execHexPair(s[i+1], s[i+2]) {
			return false
		}
		i += 3
	}
	return true
}

// rejectsPathEscape reports whether program looks like it tries to leave the
// executables/ sandbox directory, per the OS-specific separator rules.
func rejectsPathEscape(program string) bool {
	if runtime.GOOS == "windows" {
		if len(program) >= 2 && program[1] == ':' {
			return true
		}
		if program[0] == '/' || program[0] == '\\' {
			return true
		}
		if strings.HasPrefix(program, "..") {
			return true
		}
		return strings.Contains(program, "/.") || strings.Contains(program, "./") ||
			strings.Contains(program, "\\.") || strings.Contains(program, ".\\")
	}
	if program[0] == '/' {
		return true
	}
	if strings.HasPrefix(program, "..") {
		return true
	}
	return strings.Contains(program, "/.") || strings.Contains(program, "./")
}

// findWindowsExecutable tries fullPath against PATHEXT extensions, then the
// bare name, returning the first one that exists and isn't a directory.
func findWindowsExecutable(fullPath string) (string, error) {
	pathExt := os.Getenv("PATHEXT")
	if pathExt == "" {
		pathExt = ".COM;.EXE;.BAT;.CMD"
	}
	for _, ext := range strings.Split(pathExt, ";") {
		if ext == "" {
			continue
		}
		candidate := fullPath + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
		return fullPath, nil
	}
	return "", os.ErrNotExist
}

// validateAndResolvePath confines program to the executables/ directory,
// rejecting absolute paths and any attempt to traverse out of it, then
// resolves it to a file that actually exists.
func validateAndResolvePath(program string) (string, error) {
	if len(program) == 0 {
		return "", os.ErrNotExist
	}
	if rejectsPathEscape(program) {
		return "", os.ErrInvalid
	}

	fullPath := filepath.Join("executables", program)
	if runtime.GOOS == "windows" {
		return findWindowsExecutable(fullPath)
	}
	if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
		return fullPath, nil
	}
	return "", os.ErrNotExist
}

// execCommand runs program with args and input piped to stdin, under a
// 30-second timeout, and packages the result as {exit_code, stdout, stderr}.
func execCommand(program string, args []string, input string) types.Result {
	runProgram, runArgs := program, args
	if runtime.GOOS == "windows" {
		lower := strings.ToLower(program)
		if strings.HasSuffix(lower, ".bat") || strings.HasSuffix(lower, ".cmd") {
			runProgram = "cmd.exe"
			runArgs = append([]string{"/c", program}, args...)
		}
	}

	timeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(timeout, runProgram, runArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewBufferString(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		switch {
		case timeout.Err() == context.DeadlineExceeded:
			return types.Err(types.E_EXEC)
		default:
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return types.Err(types.E_INVARG)
			}
		}
	}

	crlfToLF := func(s string) string { return strings.ReplaceAll(s, "\r\n", "\n") }
	return types.Ok(types.NewList([]types.Value{
		types.NewInt(int64(exitCode)),
		types.NewStr(crlfToLF(stdout.String())),
		types.NewStr(crlfToLF(stderr.String())),
	}))
}

// builtinExec implements exec(command [, input]). command is either a list
// {"program", arg, ...} or a plain string run through "sh -c". Requires
// wizard permissions.
func builtinExec(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}

	var program string
	var cmdArgs []string
	switch cmd := args[0].(type) {
	case types.ListValue:
		if cmd.Len() == 0 {
			return types.Err(types.E_INVARG)
		}
		progVal, ok := cmd.Get(1).(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		program = progVal.Value()
		cmdArgs = make([]string, cmd.Len()-1)
		for i := 2; i <= cmd.Len(); i++ {
			argVal, ok := cmd.Get(i).(types.StrValue)
			if !ok {
				return types.Err(types.E_TYPE)
			}
			cmdArgs[i-2] = argVal.Value()
		}
	case types.StrValue:
		program = "sh"
		cmdArgs = []string{"-c", cmd.Value()}
	default:
		return types.Err(types.E_TYPE)
	}

	resolvedPath, err := validateAndResolvePath(program)
	if err != nil {
		return types.Err(types.E_INVARG)
	}

	var input string
	if len(args) == 2 {
		inputVal, ok := args[1].(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		if input = inputVal.Value(); !isValidBinaryString(input) {
			return types.Err(types.E_INVARG)
		}
	}

	return execCommand(resolvedPath, cmdArgs, input)
}

// builtinTime implements time(): seconds since the Unix epoch.
func builtinTime(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	return types.Ok(types.NewInt(time.Now().Unix()))
}

// builtinFtime implements ftime([time]): with no argument, the current time
// as a float with fractional seconds; with an integer argument, that value
// reinterpreted as a float.
func builtinFtime(ctx *types.TaskContext, args []types.Value) types.Result {
	switch len(args) {
	case 0:
		now := time.Now()
		return types.Ok(types.NewFloat(float64(now.Unix()) + float64(now.Nanosecond())/1e9))
	case 1:
		v, ok := args[0].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		return types.Ok(types.NewFloat(float64(v.Val)))
	default:
		return types.Err(types.E_ARGS)
	}
}

// builtinCtime implements ctime([time]): a human-readable rendering of the
// current time. A time argument is accepted syntactically (E_INVARG for
// integers, E_TYPE otherwise) but historical timestamp conversion is not
// implemented; the result always reflects "now".
func builtinCtime(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) > 1 {
		return types.Err(types.E_ARGS)
	}
	if len(args) == 1 {
		if _, ok := args[0].(types.IntValue); ok {
			return types.Err(types.E_INVARG)
		}
		return types.Err(types.E_TYPE)
	}
	// Go's "_2" verb space-pads single-digit days, matching the classic
	// 24-character ctime layout.
	return types.Ok(types.NewStr(time.Unix(time.Now().Unix(), 0).Format("Mon Jan _2 15:04:05 2006")))
}

const serverVersionString = "1.0.0-silo"

// builtinServerVersion implements server_version([key]).
func builtinServerVersion(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) == 0 {
		return types.Ok(types.NewStr(serverVersionString))
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	keyVal, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	field := func(name string, val types.Value) types.Value {
		return types.NewList([]types.Value{types.NewStr(name), val})
	}
	switch keyVal.Value() {
	case "":
		return types.Ok(types.NewList([]types.Value{
			field("major", types.NewInt(1)),
			field("minor", types.NewInt(0)),
			field("patch", types.NewInt(0)),
			field("prerelease", types.NewStr("silo")),
			field("string", types.NewStr(serverVersionString)),
			field("features", types.NewList(nil)),
		}))
	case "major":
		return types.Ok(types.NewInt(1))
	case "minor":
		return types.Ok(types.NewInt(0))
	case "patch":
		return types.Ok(types.NewInt(0))
	case "string":
		return types.Ok(types.NewStr(serverVersionString))
	case "features":
		return types.Ok(types.NewList(nil))
	default:
		return types.Err(types.E_INVARG)
	}
}

// builtinServerLog implements server_log(message, ...). Requires wizard
// permissions.
func builtinServerLog(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	first, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	var msg strings.Builder
	msg.WriteString(first.Value())
	for _, arg := range args[1:] {
		msg.WriteString(arg.String())
	}
	// TODO: route through the server's structured logger instead of stdout.
	println("[SERVER_LOG]", msg.String())
	return types.Ok(types.NewInt(0))
}

// builtinLoadServerOptions implements load_server_options(), reloading
// cached config (e.g. max_string_concat) from the $server_options object.
// Requires wizard permissions.
func builtinLoadServerOptions(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	return types.Ok(types.NewInt(int64(LoadServerOptionsFromStore(store))))
}

// builtinVerbCacheStats implements verb_cache_stats(), returning a
// compatibility structure whose fifth element is the 17-int stats vector.
func builtinVerbCacheStats(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	raw := store.ConsumeVerbCacheStats()
	vec := make([]types.Value, len(raw))
	for i, v := range raw {
		vec[i] = types.NewInt(v)
	}
	return types.Ok(types.NewList([]types.Value{
		types.NewInt(0), types.NewInt(0), types.NewInt(0), types.NewInt(0),
		types.NewList(vec),
	}))
}

// builtinResetMaxObject implements reset_max_object(), recomputing the
// max/high-water object ID from the currently live objects. Requires wizard
// permissions.
func builtinResetMaxObject(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	store.ResetMaxObject()
	return types.Ok(types.NewInt(0))
}
