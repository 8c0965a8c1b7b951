package lifecycle

import (
	"time"

	"github.com/zentag/api/internal/model"
)

// Failure texts used when the worker reports a failure without a cause.
const (
	webhookFailureMessage = "Processing failed"
	pollFailureMessage    = "AI processing failed"
)

// Outcome describes what Reconcile changed on a record.
type Outcome struct {
	Absorbed        bool // record was already terminal; only the raw payload moved
	StatusChanged   bool
	ProgressChanged bool
}

// Changed reports whether status or progress moved.
func (o Outcome) Changed() bool {
	return o.StatusChanged || o.ProgressChanged
}

// Reconcile merges u into job in place. Terminal states are absorbing, a
// completion always carries progress 100, the first failure cause wins, and
// a poll never lowers progress already reported by a webhook.
func Reconcile(job *model.ProcessingJob, u *model.WorkerUpdate, ch model.Channel, now time.Time) Outcome {
	var out Outcome
	defer mergeRaw(job, u.Raw)

	if job.Status.IsTerminal() {
		out.Absorbed = true
		return out
	}

	prevProgress := job.Progress

	switch {
	case u.Status == model.JobStatusCompleted:
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		if job.Result == nil {
			job.Result = u.ResultPayload()
		}
		job.CompletedAt = &now
		out.StatusChanged = true

	case u.Status == model.JobStatusFailed:
		job.Status = model.JobStatusFailed
		if job.Error == nil {
			msg := u.FailureMessage()
			if msg == "" {
				msg = defaultFailureMessage(ch)
			}
			job.Error = &msg
		}
		job.CompletedAt = &now
		out.StatusChanged = true

	case u.Status == model.JobStatusCancelled && ch == model.ChannelAdmin:
		job.Status = model.JobStatusCancelled
		job.CompletedAt = &now
		out.StatusChanged = true

	case u.Percent != nil:
		p := clampPercent(*u.Percent)
		if ch != model.ChannelPoll || p >= job.Progress {
			job.Progress = p
		}
	}

	out.ProgressChanged = job.Progress != prevProgress
	return out
}

func defaultFailureMessage(ch model.Channel) string {
	if ch == model.ChannelPoll {
		return pollFailureMessage
	}
	return webhookFailureMessage
}

func clampPercent(p int) int {
	return min(100, max(0, p))
}

// mergeRaw overwrites job's raw payload field by field.
func mergeRaw(job *model.ProcessingJob, raw map[string]any) {
	if len(raw) == 0 {
		return
	}
	if job.RawWorkerPayload == nil {
		job.RawWorkerPayload = make(map[string]any, len(raw))
	}
	for k, v := range raw {
		job.RawWorkerPayload[k] = v
	}
}
