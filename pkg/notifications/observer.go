package notifications

import "time"

// Observer receives engine events for metrics. Labels are plain strings so
// implementations need not import this package. pkg/metrics.Collector
// satisfies it.
type Observer interface {
	ObserveSubmission(outcome string)
	ObserveAttempt(channel, state string, latency time.Duration)
	ObserveQueueDepth(n int)
	ObserveReadState(op string, n int)
}

// Submission outcomes reported to ObserveSubmission beyond Outcome values.
const (
	submissionSkipped  = "skipped"
	submissionRejected = "rejected"
)

type nopObserver struct{}

func (nopObserver) ObserveSubmission(string)                     {}
func (nopObserver) ObserveAttempt(string, string, time.Duration) {}
func (nopObserver) ObserveQueueDepth(int)                        {}
func (nopObserver) ObserveReadState(string, int)                 {}
