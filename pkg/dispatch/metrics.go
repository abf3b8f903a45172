package dispatch

import "github.com/zhaopengme/telemvc/pkg/update"

// Metrics receives pipeline counters. metrics.Recorder implements it.
type Metrics interface {
	UpdateReceived(t update.Type)
	NoHandler(t update.Type)
	DispatchFailed(reason string)
	SendSucceeded()
	SendFailed()
}

type nopMetrics struct{}

func (nopMetrics) UpdateReceived(update.Type) {}
func (nopMetrics) NoHandler(update.Type)      {}
func (nopMetrics) DispatchFailed(string)      {}
func (nopMetrics) SendSucceeded()             {}
func (nopMetrics) SendFailed()                {}
