/*
Package errs provides custom error types and application-level error code constants.

The same codes are used in REST responses and in error events pushed over the chat
connection, so a client can handle both surfaces with one table.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Room and Content Errors
const (
	// ErrRoomNameInvalid indicates an empty or oversized room name.
	ErrRoomNameInvalid = 2101

	// ErrMessageNotFound indicates that no retained message carries the given id.
	ErrMessageNotFound = 2103

	// ErrMessageContentTooLong indicates that the message text exceeded the maximum length.
	ErrMessageContentTooLong = 2201

	// ErrNotInRoom indicates that the connection has no registered room yet.
	ErrNotInRoom = 2202
)

// 3xxx: Session and Security Errors
const (
	// ErrUnauthorized indicates a missing or invalid identity token.
	ErrUnauthorized = 3001

	// ErrForbidden indicates that the identity lacks the permission for the operation.
	ErrForbidden = 3002

	// ErrInvalidInternalSecret indicates a wrong or missing X-Internal-Secret header.
	ErrInvalidInternalSecret = 3003

	// ErrSessionTerminated indicates that the server closed the session.
	ErrSessionTerminated = 3004
)

// 4xxx: Moderation and Private Message Errors
const (
	// ErrMuted indicates that the user is muted and the action was refused.
	ErrMuted = 4001

	// ErrFriendsOnly indicates a friends-only restriction on public chat.
	ErrFriendsOnly = 4002

	// ErrMuteNotFound indicates that no active mute exists for the identity.
	ErrMuteNotFound = 4003

	// ErrInvalidEndDate indicates an unparsable or past mute end date.
	ErrInvalidEndDate = 4004

	// ErrPrivateMessageRejected indicates that a private message was not delivered.
	ErrPrivateMessageRejected = 4101

	// ErrBlockFailed indicates that a block could not be persisted.
	ErrBlockFailed = 4102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrBackendUnavailable indicates that a collaborator service did not answer in time.
	ErrBackendUnavailable = 5001
)
