package luafm

import (
	"fmt"
	"io"
	"os"

	"github.com/milochristiansen/lua"
	"github.com/milochristiansen/lua/lmodbase"
	"github.com/milochristiansen/lua/lmodmath"
	"github.com/milochristiansen/lua/lmodpackage"
	"github.com/milochristiansen/lua/lmodstring"
	"github.com/milochristiansen/lua/lmodtable"
	"github.com/milochristiansen/lua/luautil"

	"github.com/luafm/luafm/bridge"
	"github.com/luafm/luafm/luax"
	"github.com/luafm/luafm/safecall"
)

// The path of the bootstrap file, relative to the system dir.
const bootstrapFile = "modules/core/_bootstrap.lua"

// Module is a native module scripts can load with require().
type Module struct {
	Name string
	Open lua.NativeFunction
}

// Config carries the host-supplied pieces of an Engine.
type Config struct {
	// Frontend is the interactive UI, if the host has one. May be nil
	// (batch mode); errors then go to Diag.
	Frontend Frontend

	// Diag is where errors are written before the frontend is ready.
	// Defaults to stderr.
	Diag io.Writer

	// Modules are additional native modules, registered on init and
	// again after every restart.
	Modules []Module

	// SystemDir and UserDir override the script directories. Empty
	// means the environment/default resolution (see SystemDir).
	SystemDir string
	UserDir   string
}

// Engine is one scripting instance: a Lua state plus everything wired
// around it. Create it with New, then call Load to run the bootstrap
// script. Not safe for concurrent use.
type Engine struct {
	l    *lua.State
	call *safecall.Caller
	br   *bridge.Bridge

	cfg Config

	uiReady          bool
	coreFound        bool
	restartRequested bool
	restarting       bool

	timer timerState
}

// New creates an Engine with a fresh script state. The standard
// library, the built-in native modules and any cfg.Modules are opened;
// no script has run yet (see Load).
func New(cfg Config) *Engine {
	if cfg.Diag == nil {
		cfg.Diag = os.Stderr
	}
	e := &Engine{cfg: cfg}
	e.init()
	return e
}

// init builds the script state. Everything registered here must be
// re-registered on restart, which is why it is separate from New.
func (e *Engine) init() {
	l := lua.NewState()
	e.l = l
	e.call = safecall.New(l, uiAdapter{e}, e.cfg.Diag)
	e.br = bridge.New(l, e.call)

	openStdlib(l)
	e.openBuiltinModules()
	for _, m := range e.cfg.Modules {
		luax.Require(l, m.Name, m.Open)
	}

	// abort() is how scripts deliberately stop an operation. It is a
	// global, not a module function, because it is the script-side
	// counterpart of error().
	l.Push(func(l *lua.State) int {
		msg := l.OptString(1, "")
		code := 1
		if !l.IsNil(2) {
			code = int(l.ToInt(2))
		}
		safecall.RaiseAbort(msg, code)
		return 0
	})
	l.SetGlobal("abort")
}

// openStdlib opens the engine's standard library.
func openStdlib(l *lua.State) {
	for _, open := range []lua.NativeFunction{
		lmodbase.Open,
		lmodpackage.Open,
		lmodstring.Open,
		lmodtable.Open,
		lmodmath.Open,
	} {
		l.Push(open)
		l.Call(0, 0)
	}
}

// openBuiltinModules registers the native modules the core scripts
// need: "internal" (callback registration, restart), "timer" (the
// scheduling primitives) and "ui" (the class statics table).
func (e *Engine) openBuiltinModules() {
	luax.Require(e.l, "internal", func(l *lua.State) int {
		l.NewTable(0, 4)
		l.SetTableFunctions(-1, map[string]lua.NativeFunction{
			"register_system_callback": func(l *lua.State) int {
				// Guards against typos: rsc("x", tbl.no_such_fn) must
				// fail loudly. A consequence is that nil can't be
				// passed to unregister; the host side never needs to.
				if l.TypeOf(2) != lua.TypFunction {
					luautil.Raise("bad argument #2 to 'register_system_callback' (function expected)", luautil.ErrTypGenRuntime)
				}
				name := l.ToString(1)
				l.PushIndex(2)
				luax.RegisterSystemCallback(l, name)
				return 0
			},
			"request_lua_restart": func(l *lua.State) int {
				e.RequestRestart()
				return 0
			},
		})
		return 1
	})

	luax.Require(e.l, "timer", func(l *lua.State) int {
		l.NewTable(0, 4)
		l.SetTableFunctions(-1, map[string]lua.NativeFunction{
			"now": func(l *lua.State) int {
				l.Push(e.Now())
				return 1
			},
			"_set_next_timeout": func(l *lua.State) int {
				var tm int64
				if !l.IsNil(1) {
					tm = l.ToInt(1)
				}
				e.SetNextTimeout(tm)
				return 0
			},
			"unlock": func(l *lua.State) int {
				e.timer.lock = false
				return 0
			},
		})
		return 1
	})

	luax.Require(e.l, "conf", func(l *lua.State) int {
		l.NewTable(0, 2)
		l.SetTableFunctions(-1, map[string]lua.NativeFunction{
			"system_dir": func(l *lua.State) int {
				l.Push(e.systemDir())
				return 1
			},
			"user_dir": func(l *lua.State) int {
				l.Push(e.userDir())
				return 1
			},
		})
		return 1
	})

	luax.Require(e.l, "ui", func(l *lua.State) int {
		bridge.PushModule(l)
		return 1
	})
}

// State exposes the underlying script state, for hosts that register
// their own globals or modules.
func (e *Engine) State() *lua.State { return e.l }

// Caller exposes the safe-invocation context of this engine.
func (e *Engine) Caller() *safecall.Caller { return e.call }

// Bridge exposes the object/proxy bridge of this engine.
func (e *Engine) Bridge() *bridge.Bridge { return e.br }

// Load runs the bootstrap script, which is expected to load the system
// and user scripts and register the system callbacks. Call once after
// New; restarts re-run it automatically.
func (e *Engine) Load() {
	e.coreFound = e.call.RunFile(e.systemDir(), bootstrapFile) != safecall.StatusFileNotFound
	e.TriggerEvent("core::loaded")

	if d := luax.Depth(e.l); d != 0 {
		luax.Fatal(fmt.Sprintf("script loading left %d items on the operand stack", d))
	}
}

// CoreLoaded reports whether the bootstrap script was found. The
// deferred "scripts missing" message is shown on UIReady.
func (e *Engine) CoreLoaded() bool { return e.coreFound }

// Shutdown drops the script state. Using the Engine afterwards (other
// than via New/init on restart) is a bug.
func (e *Engine) Shutdown() {
	e.l = nil
	e.call = nil
	e.br = nil
}

// RequestRestart asks for the scripting engine to be rebuilt. The
// restart happens at the next safe opportunity (see CheckForRestart);
// scripts reach this through internal.request_lua_restart().
func (e *Engine) RequestRestart() {
	e.restartRequested = true
}

// Restarting reports whether a restart is in progress; the before/after
// restart event handlers use this to tell a restart from a plain
// startup or shutdown.
func (e *Engine) Restarting() bool { return e.restarting }

func (e *Engine) restart() {
	e.restarting = true
	e.TriggerEvent("core::before-restart")
	e.Shutdown()

	e.init()
	e.Load()
	e.TriggerEvent("core::after-restart")
	e.restarting = false
}

// CheckForRestart restarts the engine if a script asked us to. Call it
// from the event loop, after returning from script code.
//
// A restart is only safe while the operand stack is empty: a script
// that opens a dialog and continues afterwards still has its protected
// call in progress, and rebuilding the state under it would leave that
// call running against a dead engine. In that situation the restart is
// refused with a message and the request is dropped.
func (e *Engine) CheckForRestart() {
	if !e.restartRequested {
		return
	}
	e.restartRequested = false

	if luax.Depth(e.l) == 0 {
		e.restart()
	} else {
		e.message(SeverityError, "Lua",
			"You may not restart Lua from a dialog, or a window, opened by Lua.\n"+
				"First close, or switch out of, this window.")
	}
}
