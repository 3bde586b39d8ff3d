package engine

import (
	"context"
	"time"

	"github.com/netrun/flowengine/pkg/dag"
	"github.com/netrun/flowengine/pkg/models"
)

// retryConfig is the effective retry policy for a single node: a node-level
// override (spec §4.4.3 "a node's own config can override the workflow
// settings") falling back to the workflow's Settings.
type retryConfig struct {
	count    int
	delay    time.Duration
	timeout  time.Duration
}

func effectiveRetry(node *dag.ExecutableNode, settings models.Settings) retryConfig {
	rc := retryConfig{
		count: settings.RetryCount,
		delay: time.Duration(settings.RetryDelayMs) * time.Millisecond,
	}
	if settings.TimeoutS > 0 {
		rc.timeout = time.Duration(settings.TimeoutS) * time.Second
	}
	if v, ok := node.Config["retry_count"]; ok {
		if n, ok := toInt(v); ok {
			rc.count = n
		}
	}
	if v, ok := node.Config["retry_delay_ms"]; ok {
		if n, ok := toInt(v); ok {
			rc.delay = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := node.Config["timeout"]; ok {
		if n, ok := toInt(v); ok && n > 0 {
			rc.timeout = time.Duration(n) * time.Second
		}
	}
	return rc
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// dispatchWithRetry runs the Dispatcher up to rc.count+1 times, retrying
// on any failed result, including an unknown block type or a credential
// resolution failure, which Dispatch reports as failed results. An error
// from Dispatch (returned only for an already-cancelled run) ends the loop
// at once and is not retried. Between
// attempts it sleeps rc.delay, aborting early if the run is cancelled
// (spec §4.4.3).
func dispatchWithRetry(ctx context.Context, d *Dispatcher, execCtx *ExecutionContext, node *dag.ExecutableNode, rc retryConfig, sink EventSink, executionID string) (*models.NodeResult, error) {
	var last *models.NodeResult
	attempts := rc.count + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := d.Dispatch(ctx, execCtx, node, rc.timeout)
		if err != nil {
			return nil, err
		}
		last = result
		if result.Success {
			return result, nil
		}

		willRetry := attempt < attempts
		sink.Emit(Event{
			Kind:        EventNodeRetry,
			ExecutionID: executionID,
			Timestamp:   time.Now(),
			NodeID:      node.ID,
			Result:      result,
			Error:       result.Error,
			Attempt:     attempt,
			WillRetry:   willRetry,
		})
		if !willRetry {
			break
		}
		if sleepInterruptible(rc.delay, execCtx.CancelChan()) {
			return last, nil
		}
	}
	return last, nil
}
