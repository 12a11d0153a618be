package luafm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/luafm/luafm/luax"
)

// Environment variables overriding the script directories.
const (
	systemDirEnv = "LUAFM_SYSTEM_DIR"
	userDirEnv   = "LUAFM_USER_DIR"
)

// Compiled-in default for the system scripts.
const defaultSystemDir = "/usr/local/share/luafm/lua"

// SystemDir returns where the system scripts are stored: the
// LUAFM_SYSTEM_DIR environment variable, or the compiled-in default.
func SystemDir() string {
	if dir := os.Getenv(systemDirEnv); dir != "" {
		return dir
	}
	return defaultSystemDir
}

// UserDir returns where the user's own scripts are stored: the
// LUAFM_USER_DIR environment variable, or a "luafm/lua" folder under
// the user's config directory.
func UserDir() string {
	if dir := os.Getenv(userDirEnv); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "luafm", "lua")
}

func (e *Engine) systemDir() string {
	if e.cfg.SystemDir != "" {
		return e.cfg.SystemDir
	}
	return SystemDir()
}

func (e *Engine) userDir() string {
	if e.cfg.UserDir != "" {
		return e.cfg.UserDir
	}
	return UserDir()
}

// ScriptResult is the outcome of RunScript.
type ScriptResult int

const (
	// ScriptFinished: the script ran to completion.
	ScriptFinished ScriptResult = iota

	// ScriptContinue: the script reached code that needs the UI. It has
	// stopped and is to be resumed (RunScript with an empty path) once
	// the frontend is ready.
	ScriptContinue

	// ScriptError: script file not found, syntax error, or a runtime
	// error was raised.
	ScriptError
)

// RunScript runs a script the way the standalone runner does: through
// the core's "script::run" callback, which implements the stop-and-
// resume dance around UI availability. For a simple-minded alternative
// use Caller().RunFile.
func (e *Engine) RunScript(pathname string) ScriptResult {
	if !luax.GetSystemCallback(e.l, "script::run") {
		fmt.Fprintln(e.cfg.Diag,
			"Internal error: I don't know how to run scripts. The core probably wasn't bootstrapped correctly.")
		return ScriptError
	}

	e.l.Push(pathname)
	if !e.call.Call(1, 1) {
		return ScriptError
	}

	// The callback returns true if it stopped early, waiting for the UI.
	if luax.PopBool(e.l) {
		return ScriptContinue
	}
	return ScriptFinished
}

// SetArgv exports the argument vector to scripts as the global "argv".
// argv[0] is the script's path; the arguments follow.
func (e *Engine) SetArgv(scriptPath string, args []string) {
	g := luax.Guard(e.l)

	e.l.NewTable(len(args), 1)
	for _, arg := range args {
		e.l.Push(arg)
		luax.RawAppend(e.l, -2)
	}
	e.l.Push(int64(0))
	e.l.Push(scriptPath)
	e.l.SetTableRaw(-3)

	e.l.SetGlobal("argv")
	luax.Unguard(e.l, g)
}
