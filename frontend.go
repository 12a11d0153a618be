package luafm

import "fmt"

// Severity classifies frontend messages.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Frontend is the engine's view of the interactive UI. The host owns
// the event loop and the screen; the engine only needs a message box.
type Frontend interface {
	Message(severity Severity, title, text string)
}

// UIReady tells the engine the interactive frontend is up. From this
// point errors are shown in message boxes instead of the diagnostic
// stream. The first error recorded during startup, if any, is shown
// again now, and so is the deferred "core scripts missing" complaint.
func (e *Engine) UIReady() {
	if e.uiReady {
		return
	}
	e.uiReady = true

	e.call.ReplayFirstError()

	if !e.coreFound {
		e.message(SeverityError, "Lua error", fmt.Sprintf(
			"I can't find the Lua core scripts. Most probably the\n"+
				"installation is incomplete.\n"+
				"\n"+
				"The scripts are expected in the folder\n"+
				"%s\n"+
				"\n"+
				"You may point me to another folder by the %s\n"+
				"environment variable.",
			e.systemDir(), systemDirEnv))
	}
}

// IsUIReady reports whether UIReady has been called.
func (e *Engine) IsUIReady() bool { return e.uiReady }

// message shows text to the user: a frontend box when one is ready,
// the diagnostic stream otherwise.
func (e *Engine) message(sev Severity, title, text string) {
	if e.cfg.Frontend != nil && e.uiReady {
		e.cfg.Frontend.Message(sev, title, text)
		return
	}
	fmt.Fprintf(e.cfg.Diag, "%s: %s: %s\n", sev, title, text)
}

// uiAdapter exposes the engine's frontend to the safecall layer.
type uiAdapter struct {
	e *Engine
}

func (u uiAdapter) Ready() bool {
	return u.e.uiReady && u.e.cfg.Frontend != nil
}

func (u uiAdapter) ShowError(title, text string) {
	u.e.cfg.Frontend.Message(SeverityError, title, text)
}
