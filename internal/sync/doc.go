// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package sync reconciles local opinion data with the external
// consensus-clustering service through a durable, at-least-once work queue.
//
// Three cooperating pieces:
//
//   - Producer: called on the API request path to enqueue position and vote
//     sync items. Never fails the user-facing request; a queue outage means
//     the item is simply not enqueued and the producer returns false.
//
//   - Worker: a background service that claims batches from the queue,
//     dispatches each item to the external client, and applies the
//     retry/backoff state machine. Multiple worker processes partition the
//     queue safely via the store's skip-locked claim.
//
//   - Janitor: a background service that prunes completed items past the
//     retention window and refreshes queue depth gauges.
package sync
