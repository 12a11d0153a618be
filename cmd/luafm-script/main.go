// luafm-script runs Lua scripts outside the file manager.
//
// With a script argument it runs the script in batch mode through the
// core's script runner. Without one it reads from stdin: a REPL when
// stdin is a terminal, otherwise the whole input is executed as one
// chunk.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/luafm/luafm"
	"github.com/luafm/luafm/luax"
)

func main() {
	eng := luafm.New(luafm.Config{})
	defer eng.Shutdown()

	eng.Load()

	args := os.Args[1:]
	if len(args) > 0 {
		runFile(eng, args[0], args[1:])
		return
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		runREPL(eng)
		return
	}
	runBatch(eng)
}

func runFile(eng *luafm.Engine, path string, args []string) {
	eng.SetArgv(path, args)

	switch eng.RunScript(path) {
	case luafm.ScriptFinished:
		// All good.
	case luafm.ScriptContinue:
		fmt.Fprintln(os.Stderr, "this script needs the file manager's UI; run it from inside luafm")
		os.Exit(2)
	case luafm.ScriptError:
		os.Exit(1)
	}
}

func runBatch(eng *luafm.Engine) {
	src, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading script: %v\n", err)
		os.Exit(1)
	}

	l := eng.State()
	if err := l.LoadText(strings.NewReader(string(src)), "stdin", 0); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !eng.Caller().Call(0, 0) {
		os.Exit(1)
	}
}

func runREPL(eng *luafm.Engine) {
	ed := liner.NewLiner()
	defer ed.Close()
	ed.SetCtrlCAborts(true)

	l := eng.State()
	for {
		src, err := ed.Prompt("lua> ")
		if err != nil {
			// EOF or Ctrl-C.
			fmt.Println()
			return
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ed.AppendHistory(src)

		g := luax.Guard(l)

		// Compile as an expression first, so "1+1" prints its value.
		if err := l.LoadText(strings.NewReader("return "+src), "input", 0); err != nil {
			if err := l.LoadText(strings.NewReader(src), "input", 0); err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
		}

		if eng.Caller().Call(0, 1) {
			if !l.IsNil(-1) {
				fmt.Println(l.ToString(-1))
			}
			l.Pop(1)
		}
		luax.Unguard(l, g)

		eng.CheckForRestart()
	}
}
