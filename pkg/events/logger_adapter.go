package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

type loggerAdapter struct {
	entry *logrus.Entry
}

// NewLoggerAdapter routes watermill's logging through logrus.
func NewLoggerAdapter(entry *logrus.Entry) watermill.LoggerAdapter {
	return &loggerAdapter{entry: entry}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{entry: a.entry.WithFields(logrus.Fields(fields))}
}
