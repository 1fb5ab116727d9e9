package observability

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a logrus logger to the Logger facade. It is the
// production logging backend; library packages stay coupled only to the
// facade.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps a configured logrus logger. Passing nil uses the
// logrus standard logger.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Debug(msg string, fields ...Field) { l.entry.WithFields(toLogrus(fields)).Debug(msg) }
func (l *LogrusLogger) Info(msg string, fields ...Field)  { l.entry.WithFields(toLogrus(fields)).Info(msg) }
func (l *LogrusLogger) Warn(msg string, fields ...Field)  { l.entry.WithFields(toLogrus(fields)).Warn(msg) }
func (l *LogrusLogger) Error(msg string, fields ...Field) { l.entry.WithFields(toLogrus(fields)).Error(msg) }

func (l *LogrusLogger) With(fields ...Field) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(toLogrus(fields))}
}

func toLogrus(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key()] = f.Value()
	}
	return out
}
