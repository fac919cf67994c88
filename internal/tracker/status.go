package tracker

import "time"

type Status string

type Event string

const (
	StatusReceived        Status = "RECEIVED"
	StatusExecuting       Status = "EXECUTING"
	StatusSuccess         Status = "SUCCESS"
	StatusSubmissionError Status = "SUBMISSION_ERROR"
	StatusExecutionError  Status = "EXECUTION_ERROR"
)

const (
	EventIntake   Event = "INTAKE"
	EventFilled   Event = "FILLED"
	EventTimeout  Event = "TIMEOUT"
	EventRejected Event = "REJECTED"
)

// Terminal statuses are final: nextStatus never leaves them.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusSubmissionError, StatusExecutionError:
		return true
	}
	return false
}

func nextStatus(current Status, event Event) Status {
	switch current {
	case StatusReceived:
		switch event {
		case EventIntake:
			return StatusExecuting
		case EventRejected:
			return StatusSubmissionError
		case EventTimeout:
			return StatusExecutionError
		}
	case StatusExecuting:
		switch event {
		case EventFilled:
			return StatusSuccess
		case EventTimeout:
			return StatusExecutionError
		}
	}
	return current
}

// TimeoutBudget derives the failure-detection window from the slicing
// parameters the venue actually uses: every slice may live for its full
// alive time plus the inter-slice delay, repeated for each limit-order
// retry, plus a fixed buffer. Tying the window to the accepted
// configuration avoids premature timeouts on large slow orders and
// indefinite hangs on stuck ones.
func TimeoutBudget(targetSize, maxOrderSize float64, aliveTimeMS, childDelayMS int64, maxRetryAsLimitOrder int, bufferMS int64) time.Duration {
	slices := int64(1)
	if maxOrderSize > 0 && targetSize > maxOrderSize {
		slices = int64(targetSize / maxOrderSize)
		if float64(slices)*maxOrderSize < targetSize {
			slices++
		}
	}
	retries := int64(maxRetryAsLimitOrder)
	if retries < 1 {
		retries = 1
	}
	ms := slices*(aliveTimeMS+childDelayMS)*retries + bufferMS
	return time.Duration(ms) * time.Millisecond
}
