// Package services implements the collaborators the sync engine consumes: the
// authentication precondition, the authenticated fetch and the course directory.
//
// # Session
//
// The portal uses cookie sessions that are created in a browser and imported with
// [shared.ParseCurlCommand]. [SessionStore] persists the session as JSON and implements
// [Authenticator]. [SessionStore.Watch] turns replacement or removal of the session
// file into expiry signals.
//
// # Portal client
//
// [PortalClient] performs throttled GET requests against the portal and returns a
// [RawPayload]. Responses with status 401 or 403, or a redirect to the login page,
// mark the session expired and return [shared.ErrSessionExpired].
//
// # Directory and fetchers
//
// [PortalDirectory] resolves the current semester and its course list and caches both
// for a configurable age. [HomeworkFetcher] and [DocumentFetcher] map one fetch unit to
// a portal path and decode the response into models.
//
// # Error Handling
//
// Services wrap sentinel errors from the shared package:
//   - [shared.ErrMissingSession] : no session file has been imported
//   - [shared.ErrSessionExpired] : the portal rejected the session
//   - [shared.ErrUnexpectedStatus] : the portal answered with a non-2xx status
//   - [shared.ErrInvalidPayload] : the body was not the expected JSON
package services
