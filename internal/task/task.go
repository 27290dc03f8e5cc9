// Package task defines the two units of work the core accepts from its
// caller: an intake-batch task and an aggregation task. The queueing
// mechanism that delivers them (SQS, Pub/Sub, ...) is out of scope; only
// the task shapes and the handle/acknowledge contract live here.
package task

import "fmt"

// Batch names one batch included in an AggregationTask.
type Batch struct {
	ID   string
	Date string
}

// IntakeBatchTask names one ingestion batch to be intaken.
type IntakeBatchTask struct {
	AggregationID string
	BatchID       string
	Date          string
}

func (t IntakeBatchTask) String() string {
	return fmt.Sprintf("aggregation ID: %s\nbatch ID: %s\ndate: %s", t.AggregationID, t.BatchID, t.Date)
}

// AggregationTask names an aggregation window and the batches within it to
// be aggregated together.
type AggregationTask struct {
	AggregationID    string
	AggregationStart string
	AggregationEnd   string
	Batches          []Batch
}

func (t AggregationTask) String() string {
	return fmt.Sprintf("aggregation ID: %s\naggregation start: %s\naggregation end: %s\nnumber of batches: %d",
		t.AggregationID, t.AggregationStart, t.AggregationEnd, len(t.Batches))
}

// Handle wraps a task together with whatever acknowledgment metadata its
// queue needs to mark it done or requeue it.
type Handle[T any] struct {
	AcknowledgmentID string
	Task             T
}

// Queue is a source of tasks of type T. Dequeue returns (nil, nil) when no
// work is currently available. AcknowledgeTask permanently removes a
// completed task; NacknowledgeTask makes it eligible for redelivery.
type Queue[T any] interface {
	Dequeue() (*Handle[T], error)
	AcknowledgeTask(handle *Handle[T]) error
	NacknowledgeTask(handle *Handle[T]) error
}
