// Package luax provides the operand-stack utilities the rest of the
// project is written against. It fills in the conveniences missing from
// the engine's API (field access by name, registry tables by name, weak
// containers, named metatables, a callback registry) and adds the
// stack-discipline guard used to verify that native code keeps the
// operand stack balanced.
//
// All helpers take a *lua.State as their first argument and follow the
// engine's stack conventions: table operations consume their key/value
// operands, and anything documented as "pushes X" leaves exactly one new
// value on the stack.
package luax

import (
	"github.com/milochristiansen/lua"
	"github.com/milochristiansen/lua/luautil"
)

// Depth returns the number of items currently on the operand stack.
func Depth(l *lua.State) int {
	return l.AbsIndex(-1)
}

// Insert moves the value at TOS to the given index, shifting existing
// items up. Unlike the engine's State.Insert, a negative index is
// resolved before the value is popped, so Insert(l, -2) swaps the top
// two items.
func Insert(l *lua.State, idx int) {
	l.Insert(l.AbsIndex(idx))
}

// Remove deletes the value at the given index, shifting the items above
// it down.
func Remove(l *lua.State, idx int) {
	idx = l.AbsIndex(idx)
	top := l.AbsIndex(-1)
	for i := idx; i < top; i++ {
		l.Set(i, i+1)
	}
	l.Pop(1)
}

// PopBool pops the value at TOS and interprets it as a boolean.
func PopBool(l *lua.State) bool {
	v := l.ToBool(-1)
	l.Pop(1)
	return v
}

// PopInt pops the value at TOS and converts it to an integer.
func PopInt(l *lua.State) int64 {
	v := l.ToInt(-1)
	l.Pop(1)
	return v
}

// PopString pops the value at TOS and converts it to a string.
func PopString(l *lua.State) string {
	v := l.ToString(-1)
	l.Pop(1)
	return v
}

// OptBool reads a boolean at the given index, returning def if the slot
// is nil or missing. Nothing is popped.
func OptBool(l *lua.State, idx int, def bool) bool {
	if l.IsNil(idx) {
		return def
	}
	return l.ToBool(idx)
}

// RawGetField pushes t[name] (no metamethods) for the table at idx and
// returns the type of the pushed value.
func RawGetField(l *lua.State, idx int, name string) lua.TypeID {
	idx = l.AbsIndex(idx)
	l.Push(name)
	return l.GetTableRaw(idx)
}

// RawSetField pops the value at TOS and stores it as t[name] (no
// metamethods) in the table at idx.
func RawSetField(l *lua.State, idx int, name string) {
	idx = l.AbsIndex(idx)
	l.Push(name)
	Insert(l, -2)
	l.SetTableRaw(idx)
}

// SetFlag stores a boolean under t[name] in the table at idx.
func SetFlag(l *lua.State, idx int, name string, on bool) {
	idx = l.AbsIndex(idx)
	l.Push(on)
	RawSetField(l, idx, name)
}

// RawAppend pops the value at TOS and appends it to the array part of
// the table at idx (t[#t+1] = v).
func RawAppend(l *lua.State, idx int) {
	idx = l.AbsIndex(idx)
	l.Push(int64(l.LengthRaw(idx) + 1))
	Insert(l, -2)
	l.SetTableRaw(idx)
}

// RegistrySubtable pushes the table stored in the registry under name,
// creating (and registering) an empty one if it does not exist yet.
func RegistrySubtable(l *lua.State, name string) {
	l.Push(name)
	if l.GetTableRaw(lua.RegistryIndex) == lua.TypNil {
		l.Pop(1)
		l.NewTable(0, 8)
		l.Push(name)
		l.PushIndex(-2)
		l.SetTableRaw(lua.RegistryIndex)
	}
}

// RegistryGetTable pops a key from TOS and pushes T[key], where T is
// the table stored in the registry under name.
func RegistryGetTable(l *lua.State, name string) lua.TypeID {
	RegistrySubtable(l, name) // key table
	Insert(l, -2)             // table key
	t := l.GetTableRaw(-2)    // table value
	Remove(l, -2)             // value
	return t
}

// RegistrySetTable pops a key (at TOS-1) and a value (at TOS) and
// performs T[key] = value, where T is the table stored in the registry
// under name.
func RegistrySetTable(l *lua.State, name string) {
	RegistrySubtable(l, name) // key value table
	Insert(l, -3)             // table key value
	l.SetTableRaw(-3)         // table
	l.Pop(1)
}

// NewWeakTable pushes a new table whose metatable carries __mode set to
// the given mode string ("k", "v" or "kv").
//
// The embedded engine does not act on __mode (its tables are ordinary Go
// maps and entries never self-expire), so callers must not rely on weak
// semantics for cleanup; the mode is recorded for scripts that inspect
// it. Entries are reclaimed by whoever owns the table.
func NewWeakTable(l *lua.State, mode string) {
	l.NewTable(0, 8)
	l.NewTable(0, 1)
	l.Push(mode)
	RawSetField(l, -2, "__mode")
	l.SetMetaTable(-2)
}

// SearchTable scans the table at idx in the value direction: it looks
// for an entry whose value is raw-equal to the needle at TOS, and
// replaces the needle with the matching key (or with nil if no entry
// matches). The needle itself is never a valid result.
func SearchTable(l *lua.State, idx int) {
	idx = l.AbsIndex(idx)
	needle := l.AbsIndex(-1)

	found := false
	l.ForEachRaw(idx, func() bool {
		if l.CompareRaw(-1, needle, lua.OpEqual) {
			l.Set(needle, -2)
			found = true
			return false
		}
		return true
	})

	if !found {
		l.Pop(1)
		l.Push(nil)
	}
}

// Reserved registry prefix for callbacks the host looks up by name.
const callbackPrefix = "luafm.callback::"

// RegisterSystemCallback pops the value at TOS and records it as the
// system callback known by the given name. Registering nil removes the
// callback. The callback table lives in the engine's registry, so a
// scripting restart implicitly clears all registrations.
func RegisterSystemCallback(l *lua.State, name string) {
	l.Push(callbackPrefix + name)
	Insert(l, -2)
	l.SetTableRaw(lua.RegistryIndex)
}

// GetSystemCallback pushes the system callback registered under name and
// returns true. If no such callback exists, nothing is pushed and false
// is returned.
func GetSystemCallback(l *lua.State, name string) bool {
	l.Push(callbackPrefix + name)
	if l.GetTableRaw(lua.RegistryIndex) == lua.TypNil {
		l.Pop(1)
		return false
	}
	return true
}

// NewMetatable pushes the metatable registered under name, creating and
// registering a fresh table first if needed. Returns true when the
// table was newly created.
func NewMetatable(l *lua.State, name string) bool {
	l.Push(name)
	if l.GetTableRaw(lua.RegistryIndex) != lua.TypNil {
		return false
	}
	l.Pop(1)
	l.NewTable(0, 8)
	l.Push(name)
	l.PushIndex(-2)
	l.SetTableRaw(lua.RegistryIndex)
	return true
}

// GetMetatable pushes the metatable registered under name (or nil).
func GetMetatable(l *lua.State, name string) lua.TypeID {
	l.Push(name)
	return l.GetTableRaw(lua.RegistryIndex)
}

// SetMetatable sets the metatable registered under name as the
// metatable of the value at TOS. Raises an error if no metatable was
// registered under that name.
func SetMetatable(l *lua.State, name string) {
	if GetMetatable(l, name) == lua.TypNil {
		luautil.Raise("no metatable registered under \""+name+"\"", luautil.ErrTypMajorInternal)
	}
	l.SetMetaTable(-2)
}

// RegisterMetatable creates (or fetches) the metatable registered under
// name, populates it with funcs, and optionally points its __index at
// itself. The metatable is left on the stack. Returns true when the
// table was newly created.
func RegisterMetatable(l *lua.State, name string, funcs map[string]lua.NativeFunction, createIndex bool) bool {
	isNew := NewMetatable(l, name)
	if funcs != nil {
		l.SetTableFunctions(-1, funcs)
	}
	if createIndex {
		l.PushIndex(-1)
		RawSetField(l, -2, "__index")
	}
	return isNew
}

// PingMeta calls the metamethod of the value at idx named name, with
// the value itself as the only argument, discarding any result. Returns
// false (and calls nothing) if no such metamethod exists.
//
// The call is unprotected; use inside a protected context.
func PingMeta(l *lua.State, idx int, name string) bool {
	idx = l.AbsIndex(idx)
	if l.GetMetaField(idx, name) == lua.TypNil {
		return false
	}
	l.PushIndex(idx)
	l.Call(1, 1)
	l.Pop(1)
	return true
}

// Require loads a native module, making it visible to scripts via
// require(name). The module value is popped.
func Require(l *lua.State, name string, open lua.NativeFunction) {
	l.Require(name, open, false)
	l.Pop(1)
}

// PCall is a protected call that also verifies stack discipline: on
// success the net stack effect is nresults-nargs-1, on failure it is
// -nargs-1 (the engine removes the function, the arguments and the
// error value while unwinding; the error is returned, never left on the
// stack). The returned error is a luautil.Error carrying the traceback
// collected during unwinding.
func PCall(l *lua.State, nargs, nresults int) error {
	g := Guard(l)
	err := l.PCall(nargs, nresults)
	if err == nil {
		UnguardBy(l, g, nresults-nargs-1)
	} else {
		UnguardBy(l, g, -nargs-1)
	}
	return err
}
