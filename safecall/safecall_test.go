package safecall

import (
	"bytes"
	"strings"
	"testing"

	"github.com/milochristiansen/lua"
	"github.com/milochristiansen/lua/testhelp"

	"github.com/luafm/luafm/luax"
)

type fakeUI struct {
	ready  bool
	titles []string
	texts  []string
}

func (u *fakeUI) Ready() bool { return u.ready }

func (u *fakeUI) ShowError(title, text string) {
	u.titles = append(u.titles, title)
	u.texts = append(u.texts, text)
}

// loadString pushes a compiled chunk onto the stack.
func loadString(t *testing.T, l *lua.State, src string) {
	t.Helper()
	if err := l.LoadText(strings.NewReader(src), "test chunk", 0); err != nil {
		t.Fatalf("load failed: %v", err)
	}
}

func TestCallSuccess(t *testing.T) {
	l := testhelp.MkState()
	var diag bytes.Buffer
	c := New(l, nil, &diag)

	loadString(t, l, `return 1, 2`)
	if !c.Call(0, 2) {
		t.Fatalf("call failed")
	}
	if luax.Depth(l) != 2 {
		t.Fatalf("depth = %d, want 2", luax.Depth(l))
	}
	if got := luax.PopInt(l); got != 2 {
		t.Errorf("second result = %d, want 2", got)
	}
	l.Pop(1)

	if diag.Len() != 0 {
		t.Errorf("successful call wrote diagnostics: %q", diag.String())
	}
	if _, ok := c.FirstError(); ok {
		t.Errorf("successful call recorded a first error")
	}
}

func TestCallRuntimeError(t *testing.T) {
	l := testhelp.MkState()
	var diag bytes.Buffer
	c := New(l, nil, &diag)

	loadString(t, l, `error("kaboom")`)
	l.Push("unused arg")
	if c.Call(1, 0) {
		t.Fatalf("call should have failed")
	}
	if d := luax.Depth(l); d != 0 {
		t.Fatalf("depth = %d, want 0 (function, args and error all consumed)", d)
	}

	out := diag.String()
	if !strings.HasPrefix(out, "LUA EXCEPTION: ") {
		t.Errorf("diagnostic output = %q", out)
	}
	if !strings.Contains(out, "kaboom") {
		t.Errorf("diagnostic output lost the message: %q", out)
	}

	first, ok := c.FirstError()
	if !ok {
		t.Fatalf("first error not recorded")
	}
	if !strings.Contains(first, "kaboom") {
		t.Errorf("first error = %q", first)
	}
}

func TestCallAbort(t *testing.T) {
	l := testhelp.MkState()
	var diag bytes.Buffer
	c := New(l, nil, &diag)

	l.Push(func(l *lua.State) int {
		RaiseAbort("had enough", 1)
		return 0
	})
	if c.Call(0, 0) {
		t.Fatalf("aborted call reported success")
	}

	if !strings.Contains(diag.String(), "had enough") {
		t.Errorf("abort message not displayed: %q", diag.String())
	}
	if _, ok := c.FirstError(); ok {
		t.Errorf("abort must not be recorded as the first error")
	}
	if luax.Depth(l) != 0 {
		t.Fatalf("stack not empty: %d", luax.Depth(l))
	}
}

func TestNonStringError(t *testing.T) {
	l := testhelp.MkState()
	var diag bytes.Buffer
	c := New(l, nil, &diag)

	// A panic with a value that is not an error cannot be rendered as
	// text; the placeholder stands in for it everywhere.
	l.Push(func(l *lua.State) int {
		panic([]int{1, 2, 3})
	})
	if c.Call(0, 0) {
		t.Fatalf("call should have failed")
	}

	if !strings.Contains(diag.String(), nonStringError) {
		t.Errorf("placeholder not displayed: %q", diag.String())
	}
	first, ok := c.FirstError()
	if !ok {
		t.Fatalf("first error not recorded")
	}
	if first != nonStringError {
		t.Errorf("first error = %q, want the placeholder", first)
	}
	if luax.Depth(l) != 0 {
		t.Fatalf("stack not empty: %d", luax.Depth(l))
	}
}

func TestFirstErrorKeepsFirst(t *testing.T) {
	l := testhelp.MkState()
	c := New(l, nil, &bytes.Buffer{})

	loadString(t, l, `error("one")`)
	c.Call(0, 0)
	loadString(t, l, `error("two")`)
	c.Call(0, 0)

	first, ok := c.FirstError()
	if !ok {
		t.Fatalf("no first error recorded")
	}
	if !strings.Contains(first, "one") || strings.Contains(first, "two") {
		t.Errorf("first error = %q, want the earlier one", first)
	}
}

func TestDisplayRouting(t *testing.T) {
	t.Run("fancy callback wins when ready", func(t *testing.T) {
		l := testhelp.MkState()
		ui := &fakeUI{ready: true}
		var diag bytes.Buffer
		c := New(l, ui, &diag)

		var fancy string
		l.Push(func(l *lua.State) int {
			fancy = l.ToString(1)
			return 0
		})
		luax.RegisterSystemCallback(l, "devel::display_error")

		loadString(t, l, `error("seen by fancy")`)
		c.Call(0, 0)

		if !strings.Contains(fancy, "seen by fancy") {
			t.Errorf("fancy display got %q", fancy)
		}
		if len(ui.texts) != 0 {
			t.Errorf("message box used despite working callback: %v", ui.texts)
		}
		if diag.Len() != 0 {
			t.Errorf("diagnostic stream used despite ready frontend: %q", diag.String())
		}
	})

	t.Run("aborts use the abort callback", func(t *testing.T) {
		l := testhelp.MkState()
		ui := &fakeUI{ready: true}
		c := New(l, ui, &bytes.Buffer{})

		var gotAbort, gotError string
		l.Push(func(l *lua.State) int {
			gotAbort = l.ToString(1)
			return 0
		})
		luax.RegisterSystemCallback(l, "devel::display_abort")
		l.Push(func(l *lua.State) int {
			gotError = l.ToString(1)
			return 0
		})
		luax.RegisterSystemCallback(l, "devel::display_error")

		l.Push(func(l *lua.State) int {
			RaiseAbort("stop here", 0)
			return 0
		})
		c.Call(0, 0)

		if gotAbort != "stop here" {
			t.Errorf("abort callback got %q", gotAbort)
		}
		if gotError != "" {
			t.Errorf("error callback got %q, want nothing", gotError)
		}
	})

	t.Run("broken callback falls back to the message box", func(t *testing.T) {
		l := testhelp.MkState()
		ui := &fakeUI{ready: true}
		var diag bytes.Buffer
		c := New(l, ui, &diag)

		loadString(t, l, `error("display is broken")`)
		luax.RegisterSystemCallback(l, "devel::display_error")

		loadString(t, l, `error("original problem")`)
		c.Call(0, 0)

		if len(ui.texts) != 1 {
			t.Fatalf("message box shown %d times, want 1", len(ui.texts))
		}
		if !strings.Contains(ui.texts[0], "original problem") {
			t.Errorf("message box got %q", ui.texts[0])
		}
		if luax.Depth(l) != 0 {
			t.Fatalf("stack not empty: %d", luax.Depth(l))
		}
	})

	t.Run("not ready goes to the diagnostic stream", func(t *testing.T) {
		l := testhelp.MkState()
		ui := &fakeUI{ready: false}
		var diag bytes.Buffer
		c := New(l, ui, &diag)

		loadString(t, l, `error("early")`)
		c.Call(0, 0)

		if len(ui.texts) != 0 {
			t.Errorf("message box used before the frontend was ready")
		}
		if !strings.Contains(diag.String(), "early") {
			t.Errorf("diagnostic stream got %q", diag.String())
		}
	})
}

func TestReplayFirstError(t *testing.T) {
	l := testhelp.MkState()
	ui := &fakeUI{}
	var diag bytes.Buffer
	c := New(l, ui, &diag)

	// Nothing recorded yet: replay is a no-op.
	c.ReplayFirstError()
	if diag.Len() != 0 || len(ui.texts) != 0 {
		t.Fatalf("replay with an empty slot displayed something")
	}

	loadString(t, l, `error("startup trouble")`)
	c.Call(0, 0)

	// The frontend comes up; the startup error is shown again, this
	// time in a box.
	ui.ready = true
	c.ReplayFirstError()
	if len(ui.texts) != 1 || !strings.Contains(ui.texts[0], "startup trouble") {
		t.Fatalf("replay showed %v", ui.texts)
	}

	// The slot survives a replay.
	c.ReplayFirstError()
	if len(ui.texts) != 2 {
		t.Errorf("second replay showed %d boxes, want 2", len(ui.texts))
	}
}
