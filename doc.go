// Package luafm is the Lua scripting core of a terminal file manager.
//
// # Overview
//
// luafm embeds the pure-Go Lua engine github.com/milochristiansen/lua
// and plugs it into a host application. It provides:
//
//   - An Engine managing the scripting lifecycle: init, bootstrap
//     loading, shutdown, and script-requested restarts
//   - Safe invocation of script code with user-facing error display
//     (package safecall)
//   - An identity bridge between native objects and their script
//     proxies, with method dispatch by name (package bridge)
//   - Operand-stack utilities and a stack-discipline guard used by all
//     native code talking to the engine (package luax)
//   - Plumbing for key handling, event triggering, timers and batch
//     script execution
//
// # Quick Start
//
//	import "github.com/luafm/luafm"
//
//	func main() {
//	    eng := luafm.New(luafm.Config{})
//	    defer eng.Shutdown()
//
//	    eng.Load() // run the bootstrap script
//
//	    // ... event loop ...
//	    if eng.EatKey(key) {
//	        return // a script consumed the key
//	    }
//	    eng.TriggerEvent("panel::changed")
//	    eng.ExecuteReadyTimeouts()
//	}
//
// # Exposing native objects
//
// Objects implementing bridge.Object can be handed to scripts. Register
// the class once, then push away; pushing the same object twice yields
// the same script-side proxy:
//
//	br := eng.Bridge()
//	br.RegisterClass("Button", methods, statics, "Widget")
//	br.Push(btn, true)               // proxy now on the stack
//	br.CallMethod(btn, "on_click", 0)
//	br.NotifyDestroyed(btn)          // when the native object dies
//
// # Script side
//
// Scripts talk back through system callbacks, registered via the
// built-in "internal" module:
//
//	require("internal").register_system_callback("keymap::eat",
//	    function(code) return keymap.dispatch(code) end)
//
// The host looks these up by name; the bootstrap script is expected to
// register the callbacks for key handling ("keymap::eat"), events
// ("event::trigger"), timers ("timer::execute_ready_timeouts") and the
// batch runner ("script::run").
//
// An Engine is not safe for concurrent use; drive it from the thread
// that owns the event loop.
package luafm
