package log

import "slices"

// MultiLogger forwards each event to every logger in order.
type MultiLogger []Logger

// NewMultiLogger drops nil entries from loggers.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	return slices.DeleteFunc(slices.Clone(loggers), func(l Logger) bool { return l == nil })
}

func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

var _ Logger = MultiLogger(nil)
