package luax

import (
	"fmt"
	"os"

	"github.com/milochristiansen/lua"
)

// Fatal is called when an unrecoverable internal-consistency error is
// detected, a stack-discipline violation in particular. Once the
// operand stack is off by even one slot every later marshal reads the
// wrong values, so execution must not continue.
//
// The default handler writes the message to stderr and exits. Hosts
// that own the terminal should replace it with one that restores the
// screen before dying.
var Fatal = func(msg string) {
	fmt.Fprintln(os.Stderr, "fatal: "+msg)
	os.Exit(1)
}

// Guard captures the current operand-stack depth. Pair it with Unguard
// (or UnguardBy) around any native section that is supposed to leave
// the stack balanced.
func Guard(l *lua.State) int {
	return Depth(l)
}

// Unguard verifies that the stack depth matches the guarded depth
// exactly. A mismatch is fatal.
func Unguard(l *lua.State, g int) {
	UnguardBy(l, g, 0)
}

// UnguardBy verifies that the stack depth is the guarded depth plus
// delta. A mismatch is fatal.
func UnguardBy(l *lua.State, g, delta int) {
	if d := Depth(l); d != g+delta {
		Fatal(fmt.Sprintf("operand stack unbalanced: depth was %d, now %d (expected %d)", g, d, g+delta))
	}
}
