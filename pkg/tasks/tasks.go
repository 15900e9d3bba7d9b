// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// IngestTask asks the pipeline to index one document. The extracted text lives in
// object storage under ObjectKey; the message key is DocumentID so that all tasks
// for the same document land on the same partition and are processed in order.
type IngestTask struct {
	DocumentID   string    `json:"document_id"`
	UserID       string    `json:"user_id"`
	DocumentName string    `json:"document_name"`
	ObjectKey    string    `json:"object_key"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
