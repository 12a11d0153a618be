package luax

import (
	"strings"
	"testing"

	"github.com/milochristiansen/lua"
)

// trapFatal replaces the fatal handler for the duration of a test and
// records whether it fired.
func trapFatal(t *testing.T) *string {
	t.Helper()
	old := Fatal
	var msg string
	Fatal = func(m string) { msg = m }
	t.Cleanup(func() { Fatal = old })
	return &msg
}

func TestGuardBalanced(t *testing.T) {
	msg := trapFatal(t)
	l := lua.NewState()

	g := Guard(l)
	l.Push("x")
	l.Pop(1)
	Unguard(l, g)

	if *msg != "" {
		t.Errorf("balanced section reported: %s", *msg)
	}
}

func TestGuardLeak(t *testing.T) {
	msg := trapFatal(t)
	l := lua.NewState()

	g := Guard(l)
	l.Push("leaked")
	Unguard(l, g)

	if *msg == "" {
		t.Fatalf("leak not detected")
	}
	if !strings.Contains(*msg, "unbalanced") {
		t.Errorf("unexpected message: %s", *msg)
	}
	l.Pop(1)
}

func TestGuardDelta(t *testing.T) {
	msg := trapFatal(t)
	l := lua.NewState()

	g := Guard(l)
	l.Push("a")
	l.Push("b")
	UnguardBy(l, g, 2)
	if *msg != "" {
		t.Errorf("expected growth reported: %s", *msg)
	}

	UnguardBy(l, g, 1)
	if *msg == "" {
		t.Errorf("wrong delta not detected")
	}
	l.Pop(2)
}
