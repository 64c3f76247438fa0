// Package session manages the client half of an authentication session for
// browser-facing account flows: it holds, persists, and transitions the
// in-memory session state, and reconciles it with the two credential
// carriers it cannot fully see or control.
//
// Truth sources:
//   - The refresh token lives only in an httpOnly cookie set by the remote
//     credential service. Client code never reads it; the server session
//     Gate only tests its presence and redirects when it is missing.
//   - The access token lives in a CredentialStore (memory, SQLite via Bun,
//     or Redis) and is adopted provisionally on restoration. The client
//     never self-validates it; a stale token is discovered when the next
//     authenticated request is rejected, at which point the caller invokes
//     Logout (reactive invalidation, no silent retry).
//   - The Manager owns the reactive in-memory state and enforces the
//     session invariants on every transition: authenticated implies user
//     and token present, loading implies no error.
//
// Credential exchange operations (register, login, refresh, reset-password,
// verify-email) are single request/response cycles on Exchange. Payload
// validation runs before any request leaves the process, server credential
// rejections collapse into one generic message, and transport failures
// surface as a generic retry prompt, so callers can pattern-match on
// KindOf(err) instead of error shapes.
package session
