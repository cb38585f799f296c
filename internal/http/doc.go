// Package http provides HTTP handlers and middleware for the session gate API.
//
// The router exposes the following endpoints:
//   - GET /windows/availability?slug=&start=&end=&exclude_id=: reports whether the
//     interval is free on the slug. Response: {"available"}.
//   - GET /windows?slug=, POST /windows, GET|PUT|DELETE /windows/{id}: window
//     management exchanging the `windowDTO` payload defined in window_handler.go.
//     Guarded by the admin token when one is configured. Overlaps answer 409 with
//     the conflicting windows.
//   - POST /windows/series: creates a daily or weekly series from a window
//     payload plus {"frequency","weekdays","until"}. All windows or none.
//   - GET /access/{slug}: the slug's selected window and its state
//     (FINISHED, FAR_FUTURE, NEAR_FUTURE, ACTIVE) with minutes until start.
//   - POST /access/{slug}/authorize: exchanges {"credential"} for
//     {"token","window_id","expires_at"}. Throttled per slug (429).
//   - POST /conversations: starts a conversation. Body {"window_id"} plus the
//     `X-Grant-Token` header for group sessions; an empty body starts a public one.
//   - GET /conversations/{id}: timer status.
//   - GET|POST /conversations/{id}/messages: read (add display=1 for the
//     best-effort read) or append a turn {"role","content"}.
//   - POST /conversations/{id}/close: ends the conversation; repeat calls are no-ops.
//   - GET /healthz: store reachability.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
