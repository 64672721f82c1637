package upload

import "time"

// Phase is the lifecycle stage of an upload.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePreparing Phase = "preparing"
	PhaseUploading Phase = "uploading"
	PhaseRetrying  Phase = "retrying"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
)

// Projection checkpoints. Preparing work owns the range up to
// percentPrepared on the chunked path; transmission fills the rest. The
// standard path reports fixed checkpoints instead, since a single request
// gives no intermediate signal.
const (
	percentPrepared           = 30
	percentStandardEncoded    = 20
	percentStandardDispatched = 60
)

// Progress is a snapshot of an upload's advancement, projected onto a single
// 0-100 scale regardless of strategy.
type Progress struct {
	Phase   Phase
	Percent int
	Message string

	ChunksTotal    int
	ChunksUploaded int
	ChunksFailed   int

	// Attempt is the 1-based session attempt this snapshot belongs to.
	Attempt int
	// NextRetryIn is non-zero only in the retrying phase.
	NextRetryIn time.Duration
}

// progressReporter guards the projection rules: percent stays in [0,100],
// never decreases within an attempt, and is exactly 100 if and only if the
// upload completed. A restart (new attempt or a chunk-size change) resets the
// floor so the bar may visibly drop back to zero.
type progressReporter struct {
	callback func(Progress)
	attempt  int
	floor    int
}

func newProgressReporter(callback func(Progress)) *progressReporter {
	return &progressReporter{callback: callback, attempt: 1}
}

// restart drops the monotonic floor without consuming an attempt. Used when
// the upload starts over with different parameters, such as smaller chunks.
func (r *progressReporter) restart() {
	r.floor = 0
}

// nextAttempt advances the attempt counter and drops the floor.
func (r *progressReporter) nextAttempt() {
	r.attempt++
	r.floor = 0
}

func (r *progressReporter) emit(p Progress) {
	if p.Percent < 0 {
		p.Percent = 0
	}
	if p.Percent > 100 {
		p.Percent = 100
	}

	switch p.Phase {
	case PhaseComplete:
		p.Percent = 100
	case PhaseIdle:
		// A cancelled upload returns to the initial state; the floor does not
		// apply.
		r.floor = 0
	default:
		if p.Percent >= 100 {
			p.Percent = 99
		}
		if p.Percent < r.floor {
			p.Percent = r.floor
		}
	}

	r.floor = p.Percent
	p.Attempt = r.attempt

	if r.callback != nil {
		r.callback(p)
	}
}

// chunkedPercent projects chunk completion onto the transmission range of the
// scale.
func chunkedPercent(uploaded, total int) int {
	if total <= 0 {
		return percentPrepared
	}
	return percentPrepared + (100-percentPrepared)*uploaded/total
}
