// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import "fmt"

// NoTransferPathError reports that the transfer graph has no route between
// two locations for the requested step.
type NoTransferPathError struct {
	SourceLocationID string
	TargetLocationID string
}

// Error implements the error interface.
func (e *NoTransferPathError) Error() string {
	return fmt.Sprintf("no transfer path from %s to %s", e.SourceLocationID, e.TargetLocationID)
}

// ErrorType implements ErrorClassifier.
func (e *NoTransferPathError) ErrorType() string { return "no_transfer_path" }

// IsRetryable implements ErrorClassifier. Topology does not change between
// dispatcher retries of the same compiled workflow.
func (e *NoTransferPathError) IsRetryable() bool { return false }

// NoRepresentationError reports that a location lacks a per-node
// representation required to resolve a step's location argument.
type NoRepresentationError struct {
	LocationID string
	NodeName   string
}

// Error implements the error interface.
func (e *NoRepresentationError) Error() string {
	return fmt.Sprintf("location %s has no representation for node %s", e.LocationID, e.NodeName)
}

// ErrorType implements ErrorClassifier.
func (e *NoRepresentationError) ErrorType() string { return "no_representation" }

// IsRetryable implements ErrorClassifier.
func (e *NoRepresentationError) IsRetryable() bool { return false }

// NodeUnavailableError reports that a step's target node is not ready or
// not reachable at dispatch time. A node that is not ready keeps its
// workflow queued, with no failure threshold; a node that cannot be
// reached once dispatch has begun fails the step.
type NodeUnavailableError struct {
	NodeName string
	Reason   string
}

// Error implements the error interface.
func (e *NodeUnavailableError) Error() string {
	return fmt.Sprintf("node %s unavailable: %s", e.NodeName, e.Reason)
}

// ErrorType implements ErrorClassifier.
func (e *NodeUnavailableError) ErrorType() string { return "node_unavailable" }

// IsRetryable implements ErrorClassifier.
func (e *NodeUnavailableError) IsRetryable() bool { return true }

// StepFailedError wraps a terminal failed ActionResult from a node. Error
// messages from the node are preserved verbatim; the type applies no
// length cap of its own.
type StepFailedError struct {
	StepID   string
	NodeName string
	Messages []string
}

// Error implements the error interface.
func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %s failed on node %s: %v", e.StepID, e.NodeName, e.Messages)
}

// ErrorType implements ErrorClassifier.
func (e *StepFailedError) ErrorType() string { return "step_failed" }

// IsRetryable implements ErrorClassifier. A step that already ran to a
// terminal failure is not retried automatically; retry(from_index) is an
// explicit caller action.
func (e *StepFailedError) IsRetryable() bool { return false }

// TransientBackendError reports a state-store read/write failure that may
// succeed if retried.
type TransientBackendError struct {
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("transient backend failure during %s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransientBackendError) Unwrap() error { return e.Cause }

// ErrorType implements ErrorClassifier.
func (e *TransientBackendError) ErrorType() string { return "transient_backend" }

// IsRetryable implements ErrorClassifier.
func (e *TransientBackendError) IsRetryable() bool { return true }

// LockTimeoutError reports that a task failed to acquire the state lock
// within its deadline.
type LockTimeoutError struct {
	Owner string
}

// Error implements the error interface.
func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out acquiring state lock for %s", e.Owner)
}

// ErrorType implements ErrorClassifier.
func (e *LockTimeoutError) ErrorType() string { return "lock_timeout" }

// IsRetryable implements ErrorClassifier.
func (e *LockTimeoutError) IsRetryable() bool { return true }

// CancelledByUserError marks a workflow transition triggered by an explicit
// user cancel rather than a node or backend failure.
type CancelledByUserError struct {
	WorkflowID string
}

// Error implements the error interface.
func (e *CancelledByUserError) Error() string {
	return fmt.Sprintf("workflow %s cancelled by user", e.WorkflowID)
}

// ErrorType implements ErrorClassifier.
func (e *CancelledByUserError) ErrorType() string { return "cancelled_by_user" }

// IsRetryable implements ErrorClassifier.
func (e *CancelledByUserError) IsRetryable() bool { return false }

var (
	_ ErrorClassifier = (*NoTransferPathError)(nil)
	_ ErrorClassifier = (*NoRepresentationError)(nil)
	_ ErrorClassifier = (*NodeUnavailableError)(nil)
	_ ErrorClassifier = (*StepFailedError)(nil)
	_ ErrorClassifier = (*TransientBackendError)(nil)
	_ ErrorClassifier = (*LockTimeoutError)(nil)
	_ ErrorClassifier = (*CancelledByUserError)(nil)
)
