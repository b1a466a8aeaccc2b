package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Observed is a logger whose entries can be inspected by tests.
type Observed struct {
	Logger *zap.Logger
	logs   *observer.ObservedLogs
}

func NewObserved() *Observed {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Observed{Logger: zap.New(core), logs: logs}
}

func (o *Observed) All() []observer.LoggedEntry {
	return o.logs.All()
}

func (o *Observed) FilterMessage(msg string) *observer.ObservedLogs {
	return o.logs.FilterMessage(msg)
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (o *Observed) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, e := range o.logs.All() {
		if e.Level == level && strings.Contains(e.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, o.logs.All())
}

func (o *Observed) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, e := range o.logs.All() {
		if e.Level == level && strings.Contains(e.Message, msgContains) {
			tb.Errorf("unexpected log at %v containing %q", level, msgContains)
		}
	}
}
