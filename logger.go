package relstate

// Fields carries structured context for one log line.
type Fields map[string]any

// Logger is the leveled logger every component accepts. Adapters live in
// log/zap, log/logrus and log/slog; a nil Logger in any Options drops output.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
