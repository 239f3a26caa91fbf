package engine

// Severity classifies a user notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}

	return "info"
}

// Notifier shows a message to the user. Frontends implement it; the engine
// calls it for terminal failures when notifications are enabled and for
// install progress.
type Notifier interface {
	Notify(severity Severity, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(severity Severity, message string)

// Notify calls f.
func (f NotifierFunc) Notify(severity Severity, message string) { f(severity, message) }
