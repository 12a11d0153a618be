// Package bridge maintains the identity mapping between native objects
// and their script-side proxies.
//
// A proxy is a plain script table holding a numeric handle to the
// native object under the __native__ field. The mapping is recorded in
// both directions in a registry-resident weak table ("ui.weak"), and
// mirrored on the Go side so native code can go from an object to its
// handle without touching the script state. Pushing the same object
// twice yields the same proxy table, so script code can hang extra
// fields on a proxy and find them again later.
//
// When a native object dies, NotifyDestroyed marks the proxy (the
// handle is replaced by false) so that later method calls on it raise a
// catchable error instead of dereferencing a dead object.
package bridge

import (
	"fmt"

	"github.com/milochristiansen/lua"
	"github.com/milochristiansen/lua/luautil"

	"github.com/luafm/luafm/luax"
	"github.com/luafm/luafm/safecall"
)

// Object is a native object that can be handed to scripts.
type Object interface {
	// ScriptingClass names the script-side class of the object.
	// Empty means the object declares no class of its own; such
	// objects may only be pushed as the abstract base class.
	ScriptingClass() string
}

// AbstractClass is the class used for objects that declare none. It
// supports only the operations of the base metatable.
const AbstractClass = "Widget"

// Registry keys. The weak table holds the proxy mapping in both
// directions; the module table collects per-class static functions.
const (
	weakTableName   = "ui.weak"
	moduleTableName = "ui.module"
)

// metaName prefixes class metatable names so they cannot collide with
// other registry entries.
func metaName(class string) string {
	return "ui." + class
}

// Bridge owns the object/proxy identity mapping for one engine state.
// It is not safe for concurrent use; all calls must come from the
// thread driving the engine.
type Bridge struct {
	l    *lua.State
	call *safecall.Caller

	refs    map[Object]int64
	objects map[int64]Object
	nextRef int64
}

// New creates a Bridge over the given state and installs the weak
// identity table in the registry.
func New(l *lua.State, call *safecall.Caller) *Bridge {
	b := &Bridge{
		l:       l,
		call:    call,
		refs:    make(map[Object]int64),
		objects: make(map[int64]Object),
		nextRef: 1,
	}

	g := luax.Guard(l)
	luax.NewWeakTable(l, "kv")
	l.Push(weakTableName)
	luax.Insert(l, -2)
	l.SetTableRaw(lua.RegistryIndex)
	luax.Unguard(l, g)

	// The abstract base class always exists; registering a real class
	// under the same name later just adds methods to it.
	b.RegisterClass(AbstractClass, nil, nil, "")

	return b
}

// PushModule pushes the module table under which RegisterClass
// publishes static functions. The host exposes it to scripts as the
// "ui" module.
func PushModule(l *lua.State) {
	luax.RegistrySubtable(l, moduleTableName)
}

// pushRegistered pushes the proxy of an already-registered object and
// returns true. If the object has no proxy, nothing is pushed.
//
// searchHard falls back to scanning the weak table in the value
// direction when the direct handle lookup misses. The direct entry can
// be gone while the reverse entry survives (that is how weak tables
// treat values versus keys during finalization), so the destruction
// path must always search hard. Nothing else needs to.
func (b *Bridge) pushRegistered(obj Object, searchHard bool) bool {
	ref, ok := b.refs[obj]
	if !ok {
		return false
	}

	l := b.l
	l.Push(ref)
	luax.RegistryGetTable(l, weakTableName)

	if l.IsNil(-1) && searchHard {
		l.Pop(1)
		g := luax.Guard(l)
		luax.RegistrySubtable(l, weakTableName)
		l.Push(ref)
		luax.SearchTable(l, -2)
		luax.Remove(l, -2)
		luax.UnguardBy(l, g, 1)
	}

	if l.IsNil(-1) {
		l.Pop(1)
		return false
	}
	return true
}

// Push converts a native object to its script proxy. This is the easy
// version of PushObject.
func (b *Bridge) Push(obj Object, createdByNative bool) {
	b.PushObject(obj, createdByNative, false)
}

// PushObject pushes the proxy for obj, creating and registering one on
// first sight. Pushing nil pushes nil.
//
// createdByNative flags a freshly created proxy as one that was not
// built by script code; scripts use this to decide ownership questions.
// allowAbstract permits objects with no scripting class, which are
// pushed as the abstract base class; without it such an object is an
// internal-consistency error and fatal.
func (b *Bridge) PushObject(obj Object, createdByNative, allowAbstract bool) {
	l := b.l

	if obj == nil {
		l.Push(nil)
		return
	}

	if b.pushRegistered(obj, false) {
		// The proxy already exists and has just been fetched.
		return
	}

	class := obj.ScriptingClass()
	if class == "" {
		if !allowAbstract {
			luax.Fatal("internal error: object has no scripting class")
		}
		class = AbstractClass
	}

	// A stale mapping (proxy gone but handle still recorded) is
	// replaced wholesale.
	if old, ok := b.refs[obj]; ok {
		delete(b.objects, old)
	}

	ref := b.nextRef
	b.nextRef++

	l.NewTable(0, 4)
	if luax.GetMetatable(l, metaName(class)) == lua.TypNil {
		luax.Fatal("internal error: scripting class \"" + class + "\" was never registered")
	}
	l.SetMetaTable(-2)

	l.Push(ref)
	luax.RawSetField(l, -2, "__native__")
	if createdByNative {
		l.Push(true)
		luax.RawSetField(l, -2, "__created_by_native__")
	}

	// Record the identity in both directions (see pushRegistered for
	// why both are needed), and mirror it on the Go side.
	l.Push(ref)
	l.PushIndex(-2)
	luax.RegistrySetTable(l, weakTableName)
	l.PushIndex(-1)
	l.Push(ref)
	luax.RegistrySetTable(l, weakTableName)

	b.refs[obj] = ref
	b.objects[ref] = obj

	// Give classes a chance to initialize the fresh proxy.
	if err := l.Protect(func() { luax.PingMeta(l, -1, "init") }); err != nil {
		b.call.Report(err)
	}
}

// NotifyDestroyed must be called whenever a native object dies. The
// proxy, if one exists, is marked destroyed (its handle is replaced by
// false), its on_destroy method is called, and the identity entries are
// dropped in both directions.
//
// Removing the entries is not strictly required for correctness, but a
// later object could be assigned a recycled handle, and the mapping
// must not resolve it to the dead proxy.
func (b *Bridge) NotifyDestroyed(obj Object) {
	if obj == nil {
		return
	}

	l := b.l
	g := luax.Guard(l)

	if b.pushRegistered(obj, true) {
		luax.SetFlag(l, -1, "__native__", false)

		// Inheritance-aware dispatch, hence not a plain metatable ping.
		b.CallMethod(obj, "on_destroy", 0)

		l.PushIndex(-1)
		l.Push(nil)
		luax.RegistrySetTable(l, weakTableName)

		l.Pop(1) // the proxy
	}

	if ref, ok := b.refs[obj]; ok {
		l.Push(ref)
		l.Push(nil)
		luax.RegistrySetTable(l, weakTableName)
		delete(b.refs, obj)
		delete(b.objects, ref)
	}

	luax.Unguard(l, g)
}

// CheckObject converts the proxy at idx back to its native object. It
// has the semantics of an argument check: anything wrong raises a
// catchable script error that names the problem. A value that is not a
// proxy at all is reported differently from a proxy whose object has
// been destroyed.
//
// With allowDestroyed set, a destroyed (or teardown-orphaned) proxy
// yields nil instead of an error; scripts use this for is_alive-style
// predicates. A non-empty class additionally requires the object to be
// of exactly that scripting class.
func (b *Bridge) CheckObject(idx int, allowDestroyed bool, class string) Object {
	l := b.l
	idx = l.AbsIndex(idx)

	if l.TypeOf(idx) != lua.TypTable {
		luautil.Raise(fmt.Sprintf("bad argument #%d (widget expected, got %v)", idx, l.TypeOf(idx)), luautil.ErrTypGenRuntime)
	}

	switch luax.RawGetField(l, idx, "__native__") {
	case lua.TypBool:
		// A false handle marks a destroyed proxy. See NotifyDestroyed.
		l.Pop(1)
		if !allowDestroyed {
			luautil.Raise("a living widget was expected, but an already destroyed widget was provided", luautil.ErrTypGenRuntime)
		}
		return nil
	case lua.TypNil:
		l.Pop(1)
		if !allowDestroyed {
			luautil.Raise(fmt.Sprintf("bad argument #%d (widget expected, table has no native handle)", idx), luautil.ErrTypGenRuntime)
		}
		return nil
	}

	ref := luax.PopInt(l)
	obj, ok := b.objects[ref]
	if !ok {
		// The handle outlived the mapping; can happen while the engine
		// is being torn down.
		if !allowDestroyed {
			luautil.Raise("a living widget was expected, but an already destroyed widget was provided", luautil.ErrTypGenRuntime)
		}
		return nil
	}

	if class != "" && obj.ScriptingClass() != class {
		luautil.Raise(fmt.Sprintf("a widget of type '%s' was expected, but '%s' was given", class, obj.ScriptingClass()), luautil.ErrTypGenRuntime)
	}
	return obj
}
