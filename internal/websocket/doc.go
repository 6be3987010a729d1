// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package websocket implements the chat relay hub.
//
// The hub tracks connected clients per chat session ("room") and fans
// messages out to every participant in the same room. It does no
// persistence and no moderation of its own; it is connection and room
// bookkeeping only. The hub runs as a supervised service and drains
// cleanly on context cancellation, closing every client connection
// with a going-away frame.
package websocket
