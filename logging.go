package kafka

import "log"

// StdLogger is the logging hook every component writes through, the
// same shape the teacher's consumer.go calls as package-level Logger.
type StdLogger interface {
	Println(v ...interface{})
	Printf(format string, v ...interface{})
}

// Logger defaults to a no-op so a library consumer isn't forced to see
// output; assign a *log.Logger (or anything satisfying StdLogger) to
// turn it on.
var Logger StdLogger = noopLogger{}

type noopLogger struct{}

func (noopLogger) Println(v ...interface{})               {}
func (noopLogger) Printf(format string, v ...interface{}) {}

// SetLogger is a convenience wrapper for the common case of pointing
// Logger at the standard library logger.
func SetLogger(l *log.Logger) {
	Logger = l
}
