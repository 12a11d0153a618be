// Package safecall runs script code on behalf of native callers and
// deals with whatever goes wrong. Every native-initiated entry into the
// scripting engine goes through a Caller: it wraps the engine's
// protected call, verifies the operand stack stays balanced, and shows
// errors to the user instead of propagating them.
//
// Errors come in two flavors. Ordinary runtime errors carry a traceback
// and are remembered: the very first one is kept in the first-error
// slot so it can be shown again once the interactive frontend is up
// (errors raised during startup would otherwise scroll away on a screen
// the user never sees). Aborts are deliberate stops raised by scripts
// via abort(); they are displayed on their own path, without a
// traceback, and are never recorded for replay.
package safecall

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/milochristiansen/lua"
	"github.com/milochristiansen/lua/luautil"

	"github.com/luafm/luafm/luax"
)

// Shown in place of an error value that cannot be rendered as text.
const nonStringError = "(error object is not a string)"

// Script-side callbacks used to display errors nicely once the
// interactive frontend is up. Registered by the core scripts.
const (
	displayErrorCallback = "devel::display_error"
	displayAbortCallback = "devel::display_abort"
)

// Abort is the error a script raises to deliberately stop the current
// operation. It is not a bug indicator: no traceback is collected and
// it never lands in the first-error slot.
type Abort struct {
	Message string
	Code    int
}

func (a Abort) Error() string { return a.Message }

// RaiseAbort unwinds the current script call with an Abort. Only call
// it from native code running under a protected call.
func RaiseAbort(message string, code int) {
	panic(Abort{Message: message, Code: code})
}

// UI is the caller's view of the interactive frontend. Until Ready
// reports true, errors go to the plain diagnostic stream instead.
type UI interface {
	Ready() bool
	ShowError(title, text string)
}

// Caller runs script code under the engine's protected call and owns
// the error display policy and the first-error slot. One Caller per
// engine state; it is discarded together with the state on restart.
type Caller struct {
	l    *lua.State
	ui   UI
	diag io.Writer

	firstError string
	hasFirst   bool
}

// New creates a Caller for the given state. ui may be nil (never
// ready); diag defaults to stderr.
func New(l *lua.State, ui UI, diag io.Writer) *Caller {
	if diag == nil {
		diag = os.Stderr
	}
	return &Caller{l: l, ui: ui, diag: diag}
}

// Call "safely" calls a script function: a fancy version of the
// engine's PCall that catches any error and displays it to the user.
// The function and nargs arguments must be on the stack. Returns true
// on success.
//
// The net stack effect is nresults-nargs-1 on success and -nargs-1 on
// failure; the error value is never left on the stack.
func (c *Caller) Call(nargs, nresults int) bool {
	g := luax.Guard(c.l)

	err := c.l.PCall(nargs, nresults)
	if err == nil {
		luax.UnguardBy(c.l, g, nresults-nargs-1)
		return true
	}

	luax.UnguardBy(c.l, g, -nargs-1)
	c.Report(err)
	return false
}

// Report classifies an error from a protected call and displays it.
// The first runtime error is recorded for replay before it is shown, so
// a failure inside the display path cannot lose it.
func (c *Caller) Report(err error) {
	msg, isAbort := classify(err)
	if !isAbort && !c.hasFirst {
		c.firstError = msg
		c.hasFirst = true
	}
	c.display(msg, isAbort)
}

// ReplayFirstError shows the recorded first error again, if there is
// one. Called when the frontend becomes ready, since the original
// display may have gone to a screen the user never saw. The slot is
// kept, so replaying twice shows the same error twice.
func (c *Caller) ReplayFirstError() {
	if !c.hasFirst {
		return
	}
	c.display(c.firstError, false)
}

// FirstError returns the recorded first runtime error, if any.
func (c *Caller) FirstError() (string, bool) {
	return c.firstError, c.hasFirst
}

// classify splits an error into its display message and whether it is a
// deliberate abort rather than a runtime error.
func classify(err error) (msg string, isAbort bool) {
	var ab Abort
	if errors.As(err, &ab) {
		return ab.Message, true
	}

	if le, ok := err.(luautil.Error); ok {
		if le.Err != nil && errors.As(le.Err, &ab) {
			return ab.Message, true
		}
		if le.Type == luautil.ErrTypEvil {
			return nonStringError, false
		}
	}

	return err.Error(), false
}

// display routes an error message to the user. With the frontend up it
// tries the script-side display callback first (scripts render errors
// much nicer than a plain box), then the frontend's message box. Before
// the frontend is ready the message goes to the diagnostic stream.
func (c *Caller) display(msg string, isAbort bool) {
	if c.ui != nil && c.ui.Ready() {
		cb := displayErrorCallback
		if isAbort {
			cb = displayAbortCallback
		}
		if luax.GetSystemCallback(c.l, cb) {
			c.l.Push(msg)
			if c.l.PCall(1, 0) == nil {
				return
			}
			// The display callback itself blew up. Fall back to the
			// plain box; reporting the secondary error would recurse.
		}

		title := "Lua error"
		if isAbort {
			title = "Lua"
		}
		c.ui.ShowError(title, msg)
		return
	}

	fmt.Fprintf(c.diag, "LUA EXCEPTION: %s\n", msg)
}
