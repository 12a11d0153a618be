package bridge

import (
	"github.com/milochristiansen/lua"

	"github.com/luafm/luafm/luax"
)

// MethodExists reports whether the object's proxy has a callable method
// of the given name, inherited methods included.
func (b *Bridge) MethodExists(obj Object, name string) bool {
	if !b.pushRegistered(obj, false) {
		return false
	}

	l := b.l
	l.Push(name)
	l.GetTable(-2)
	exists := l.TypeOf(-1) == lua.TypFunction
	l.Pop(2)
	return exists
}

// CallMethod calls a method on the object's proxy.
//
// The caller may push arguments for the method; nargs says how many.
// They are consumed no matter what: if the object has no proxy or the
// proxy has no such method, the arguments are popped and CallMethod
// returns without calling anything.
//
// handled reports whether the method ran and returned a true-ish value;
// found distinguishes a method that returned false from one that does
// not exist (a method that failed mid-run counts as not found).
func (b *Bridge) CallMethod(obj Object, name string, nargs int) (handled, found bool) {
	l := b.l

	if !b.pushRegistered(obj, false) {
		l.Pop(nargs)
		return false, false
	}

	l.Push(name)
	l.GetTable(-2)
	if l.TypeOf(-1) != lua.TypFunction {
		l.Pop(nargs + 2)
		return false, false
	}

	// The stack is now [arg1 .. argN, proxy, method]. Move the method
	// and the proxy below the arguments, so the proxy becomes the
	// method's self argument:
	//
	//   -1: method        -1: argN
	//   -2: proxy         ...
	//   -3: argN    =>    -N-1: proxy
	//   ...               -N-2: method
	luax.Insert(l, -2)
	luax.Insert(l, -(nargs + 2))
	luax.Insert(l, -(nargs + 2))

	if !b.call.Call(1+nargs, 1) {
		return false, false
	}
	return luax.PopBool(l), true
}

// RegisterClass sets up a scripting class: a metatable (stored in the
// registry under the prefixed class name) holding the methods and
// indexing into itself, plus a widget_type field scripts can use to
// identify the class. A non-empty parent chains the metatables, so
// method lookup falls through to the parent class.
//
// The statics, along with a meta field pointing at the metatable, are
// published under the class's name in the module table (see
// PushModule).
//
// Register a class once per engine state, before the first proxy of
// that class is pushed. The abstract base class must be registered if
// PushObject is ever used with allowAbstract.
func (b *Bridge) RegisterClass(name string, methods, statics map[string]lua.NativeFunction, parent string) {
	l := b.l

	g := luax.Guard(l)
	luax.RegisterMetatable(l, metaName(name), methods, true)
	l.Push(name)
	luax.RawSetField(l, -2, "widget_type")
	if parent != "" {
		luax.SetMetatable(l, metaName(parent))
	}
	l.Pop(1) // the metatable
	luax.Unguard(l, g)

	g = luax.Guard(l)
	PushModule(l)
	if luax.RawGetField(l, -1, name) == lua.TypNil {
		l.Pop(1)
		l.NewTable(0, 8)
		l.PushIndex(-1)
		luax.RawSetField(l, -3, name)
	}
	if statics != nil {
		l.SetTableFunctions(-1, statics)
	}
	luax.GetMetatable(l, metaName(name))
	luax.RawSetField(l, -2, "meta")
	l.Pop(2)
	luax.Unguard(l, g)
}
