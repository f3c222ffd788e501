/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the server
and in responses sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON is malformed.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates extra content after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Ticket and Chat Errors
const (
	// ErrTicketNotFound indicates that no ticket matches the given id.
	ErrTicketNotFound = 2101

	// ErrChannelNotFound indicates that no ticket matches the given chat token.
	ErrChannelNotFound = 2102

	// ErrNotAuthorised indicates that the caller is not one of the ticket's participants.
	ErrNotAuthorised = 2103

	// ErrOpenTicketExists indicates that the user already has an open ticket.
	ErrOpenTicketExists = 2104

	// ErrMessageContentTooLong indicates that a chat message exceeded the maximum length.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates that a chat message carried no text.
	ErrMessageEmpty = 2202
)

// 3xxx: Identity Errors
const (
	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = 3001

	// ErrForbidden indicates that the authenticated identity may not perform the action.
	ErrForbidden = 3002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified server error.
	ErrUnknown = 5000

	// ErrStorageFailed indicates that the persistent store rejected or failed an operation.
	ErrStorageFailed = 5001
)
