package pcm

// Logger is the logging interface consumed by the emulation core. The
// binary provides a leveled implementation; tests provide a silent one.
type Logger interface {
	Printf(format string, v ...interface{})
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	DebugCAN(direction string, id uint32, data []byte, length uint8)
}

// LogCAN hex-dumps a frame if the logger is present.
func LogCAN(logger Logger, direction string, id uint32, data []byte, length uint8) {
	if logger != nil {
		logger.DebugCAN(direction, id, data, length)
	}
}

// nopLogger discards everything. Used as a fallback so components never
// need nil checks on every call site.
type nopLogger struct{}

func (nopLogger) Printf(format string, v ...interface{}) {}
func (nopLogger) Debug(format string, v ...interface{})  {}
func (nopLogger) Info(format string, v ...interface{})   {}
func (nopLogger) Warn(format string, v ...interface{})   {}
func (nopLogger) Error(format string, v ...interface{})  {}
func (nopLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
}

func ensureLogger(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
