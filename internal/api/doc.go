// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package api provides the HTTP surface of the service: position and
// vote submission, score reads, sync-queue administration, health, and
// the chat relay upgrade endpoint.
//
// Handlers stay thin. A write request is validated, persisted, and the
// external sync is enqueued; everything slow or fallible beyond the
// local database happens in the background workers. A queue failure
// never fails the originating request.
package api
