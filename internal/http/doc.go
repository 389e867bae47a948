// Package http provides HTTP handlers and middleware for the pickup coordination API.
//
// The router exposes the following endpoints:
//   - GET /healthz: storage liveness. Unauthenticated.
//   - POST /signup: self registration into an organization. Unauthenticated. The
//     account starts as PENDING_APPROVAL.
//   - GET /users, POST /users/{id}/approve: administrator user management.
//   - GET /users/{id}/addresses, POST /users/{id}/addresses: a member's geocoded
//     pickup addresses.
//   - GET /service-days, POST /service-days, GET|PUT|DELETE /service-days/{id}:
//     the service catalog. DELETE deactivates. GET /service-days/{id}/occurrences
//     previews upcoming service starts.
//   - GET /pickup-requests, POST /pickup-requests, GET|PATCH /pickup-requests/{id}:
//     ride requests. A recurring POST answers with every request of the new series.
//   - POST /pickup-requests/{id}/{accept,release,cancel,complete}: status
//     transitions with an optional {"driver_id","note"} body.
//     GET /pickup-requests/{id}/events lists the audit trail.
//   - POST /pickup-series/{id}/cancel: cancels what remains of a series.
//
// All other routes require a bearer JWT. Errors share one envelope,
// {"error_code","message","errors"}, where errors maps JSON field names to messages.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
