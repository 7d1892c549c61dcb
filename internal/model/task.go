package model

import (
	"encoding/json"
	"time"
)

// TaskKind is the completion-signal shape of an external asynchronous task.
type TaskKind string

const (
	// TaskKindSimpleStatus tasks expose a single status field that moves to
	// "completed" or "failed"; the final payload is fetched separately.
	TaskKindSimpleStatus TaskKind = "simple_status"

	// TaskKindDualFlag tasks expose two independent activity flags and carry
	// their payload inline; they are done when both flags are false. There
	// is no explicit failure signal for this kind.
	TaskKindDualFlag TaskKind = "dual_flag"

	// TaskKindSynchronous marks an operation that resolved inline: the
	// initiating call returned no task id and its body is already final.
	TaskKindSynchronous TaskKind = "synchronous"
)

// TaskHandle references a started external task. Handles are ephemeral:
// they live for one waiter invocation and are never persisted.
type TaskHandle struct {
	ID        string
	Kind      TaskKind
	StartedAt time.Time

	// Inline holds the initiating call's response body for synchronous
	// resolutions; empty otherwise.
	Inline json.RawMessage
}
