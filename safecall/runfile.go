package safecall

import (
	"os"
	"path/filepath"

	"github.com/luafm/luafm/luax"
)

// Status is the outcome of RunFile.
type Status int

const (
	StatusOK Status = iota
	StatusFileNotFound
	StatusSyntaxError
	StatusRuntimeError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFileNotFound:
		return "file not found"
	case StatusSyntaxError:
		return "syntax error"
	case StatusRuntimeError:
		return "runtime error"
	}
	return "unknown"
}

// RunFile executes a script file, displaying any compile or runtime
// error the way Call does. A missing (or unreadable) file is not an
// error worth displaying: callers use it to probe for optional scripts,
// so it is only reported through the return value.
func (c *Caller) RunFile(dirname, basename string) Status {
	path := basename
	if dirname != "" {
		path = filepath.Join(dirname, basename)
	}

	f, err := os.Open(path)
	if err != nil {
		return StatusFileNotFound
	}
	defer f.Close()

	g := luax.Guard(c.l)
	if err := c.l.LoadText(f, "@"+path, 0); err != nil {
		luax.Unguard(c.l, g)
		c.Report(err)
		return StatusSyntaxError
	}

	if !c.Call(0, 0) {
		return StatusRuntimeError
	}
	return StatusOK
}
