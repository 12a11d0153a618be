package luafm

import (
	"github.com/luafm/luafm/bridge"
	"github.com/luafm/luafm/luax"
)

// EatKey offers a key press to the scripts. Returns true if the key was
// consumed and the host must not act on it. Called on every key press,
// so the callback lookup is the fast path when no keymap is installed.
func (e *Engine) EatKey(keycode int) bool {
	consumed := false

	if luax.GetSystemCallback(e.l, "keymap::eat") {
		e.l.Push(int64(keycode))

		if e.call.Call(1, 1) {
			// The callback returns true if the key was consumed.
			consumed = luax.PopBool(e.l)
		} else {
			// Some error stopped the script (an alert was shown);
			// that's still no reason to fall back to the key's default
			// action.
			consumed = true
		}

		e.CheckForRestart()
	}

	return consumed
}

// TriggerEvent raises an event on the script side.
func (e *Engine) TriggerEvent(name string) {
	if luax.GetSystemCallback(e.l, "event::trigger") {
		e.l.Push(name)
		e.call.Call(1, 0)
	}
}

// TriggerObjectEvent raises an event carrying a native object, which
// arrives on the script side as its proxy.
//
// Events are suppressed before the frontend is ready: early handlers
// would run against a UI that cannot service them yet.
func (e *Engine) TriggerObjectEvent(name string, obj bridge.Object) {
	if e.uiReady && luax.GetSystemCallback(e.l, "event::trigger") {
		e.l.Push(name)
		e.br.PushObject(obj, true, true)
		e.call.Call(2, 0)
	}
}
