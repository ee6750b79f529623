package avcore

import "github.com/google/uuid"

// sessionID tags every log line an Engine emits across its pipeline
// threads with a short correlation id, so logs from concurrent reader and
// decoder goroutines interleaved on one output stream can be told apart.
// Regenerated on every Open, since one Engine is reused across multiple
// open/stop cycles.
func newSessionID() string {
	return uuid.New().String()[:8]
}
