// Package scenarios implements the project scenario workflow: branching a
// project into scenario nodes, selecting (and freezing the siblings of) a
// node, and recording per-step deltas on a node.
//
// Writes that touch both the scenario tree and the project's
// active_scenario_id pointer run in one transaction, so a failed pointer
// update rolls the branch or freeze back and is reported to the caller.
// Pointers written by other clients are repaired by Reconcile, which the
// tree read triggers when it sees a stale pointer.
//
// Auditing:
//   - Every successful write appends exactly one audit event inside its
//     transaction.
//   - Manager notifications are sent after commit and never fail the call.
package scenarios
