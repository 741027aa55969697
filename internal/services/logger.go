// Package services holds the shared plumbing the DI-managed services lean
// on. The logger here stamps every event with the owning service's
// container ID so a single log stream stays attributable.
package services

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceIdentifier is the one method a service needs to expose to get a
// scoped logger. Every container service already has it.
type ServiceIdentifier interface {
	ID() string
}

// ServiceLogger is a zerolog logger bound to one service.
type ServiceLogger struct {
	logger zerolog.Logger
}

// NewServiceLogger derives a logger from the global one, tagged with the
// service's ID under the "service" key.
func NewServiceLogger(svc ServiceIdentifier) *ServiceLogger {
	return &ServiceLogger{
		logger: log.With().Str("service", svc.ID()).Logger(),
	}
}

func (l *ServiceLogger) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *ServiceLogger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *ServiceLogger) Error() *zerolog.Event {
	return l.logger.Error()
}

func (l *ServiceLogger) Debug() *zerolog.Event {
	return l.logger.Debug()
}
