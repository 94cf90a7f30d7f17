// Package worker defines the contract every inventory backend implements, the canonical
// host record it produces and the parameter schema used to configure it.
package worker

import (
	"context"
	"log/slog"
)

// Worker polls one backend instance (a node) and maps what it finds into host records.
type Worker interface {
	// Parameters returns the ordered configuration keys with their defaults.
	// It is pure and may be called before SetNode.
	Parameters() ParameterSchema

	// SetNode validates cfg against Parameters and stores the connection settings.
	// Calling it again fully replaces the previous configuration.
	SetNode(cfg NodeConfig) error

	// Valid reports whether the runtime prerequisites of this backend are met.
	Valid() bool

	// Run connects to the backend and enumerates its hosts. It never panics and never
	// returns a partially populated record; failures are reported through RunResult.Err.
	Run(ctx context.Context) RunResult
}

// RunResult is the outcome of a single Run call. Hosts holds every complete record gathered
// before a failure, Err is a *BackendError when the backend could not be fully enumerated.
type RunResult struct {
	Hosts Inventory
	Err   error
}

// Failed builds a RunResult for a backend failure, keeping already complete hosts.
func Failed(hosts Inventory, err error) RunResult {
	if hosts == nil {
		hosts = Inventory{}
	}
	return RunResult{Hosts: hosts, Err: err}
}

// Succeeded builds a RunResult with no error.
func Succeeded(hosts Inventory) RunResult {
	if hosts == nil {
		hosts = Inventory{}
	}
	return RunResult{Hosts: hosts}
}

// LoggerAware is implemented by workers that accept a node scoped logger.
type LoggerAware interface {
	SetLogger(logger *slog.Logger)
}

// Base carries the pieces shared by all built-in workers.
type Base struct {
	logger *slog.Logger
}

// SetLogger implements LoggerAware.
func (b *Base) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

// Logger returns the configured logger or one that discards everything.
func (b *Base) Logger() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// Valid reports true; backends built on pure Go clients have no external prerequisites.
func (b *Base) Valid() bool {
	return true
}
