package service

// Recorder receives business events for metrics. *metrics.Metrics
// implements it; services default to a no-op when given nil.
type Recorder interface {
	AuthAttempt(op, outcome string)
	TaskEvent(op string)
}

type nopRecorder struct{}

func (nopRecorder) AuthAttempt(string, string) {}
func (nopRecorder) TaskEvent(string)           {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
