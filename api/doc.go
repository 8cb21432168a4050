// Package api documents the Agora HTTP API.
//
// Handlers live in api/handlers; routes are registered by cmd/agora.
//
// # API Overview
//
// Agora provides a RESTful API for:
//   - Submitting conversation entries, which run one analysis pass across all active personas
//   - Reading persona status: decayed confidence, eligibility and LED rank per room
//   - Triggering a persona's proposed response and rating it afterwards
//   - Moderating externally sourced content before it enters a room
//   - Persona administration and latency summaries
//   - A WebSocket stream of room status for button/LED controllers
//
// # Authentication
//
// When API keys are configured, requests must carry the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// With JWT enabled, send a bearer token instead; the user_id claim becomes
// the reviewer identity for moderation decisions.
//
// # Response Envelope
//
// Every endpoint except /api/led-status and the room led-status endpoint
// answers with:
//
//	{"success": true, "data": ..., "timestamp": "...", "request_id": "..."}
//
// Errors carry {"code", "message", "retryable"} under "error". The LED
// endpoints return a bare array for compatibility with existing controllers.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// Prometheus metrics are served separately on the metrics port (default 9091).
package api
