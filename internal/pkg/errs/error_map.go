package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx
	ErrRoomNameInvalid:       {Code: ErrRoomNameInvalid, Message: "Invalid chat room name."},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long (max %d characters)."},
	ErrNotInRoom:             {Code: ErrNotInRoom, Message: "You have not joined a chat room yet."},

	// 3xxx
	ErrUnauthorized:          {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrForbidden:             {Code: ErrForbidden, Message: "You are not allowed to do that.", Status: http.StatusForbidden},
	ErrInvalidInternalSecret: {Code: ErrInvalidInternalSecret, Message: "Invalid internal secret.", Status: http.StatusUnauthorized},
	ErrSessionTerminated:     {Code: ErrSessionTerminated, Message: "Your chat session was closed by the server."},

	// 4xxx
	ErrMuted:                  {Code: ErrMuted, Message: "You are muted until %s."},
	ErrFriendsOnly:            {Code: ErrFriendsOnly, Message: "You can currently only chat with your friends."},
	ErrMuteNotFound:           {Code: ErrMuteNotFound, Message: "No active mute found.", Status: http.StatusNotFound},
	ErrInvalidEndDate:         {Code: ErrInvalidEndDate, Message: "Invalid end date.", Status: http.StatusBadRequest},
	ErrPrivateMessageRejected: {Code: ErrPrivateMessageRejected, Message: "Private message was not delivered (%s)."},
	ErrBlockFailed:            {Code: ErrBlockFailed, Message: "Could not block this player. Please try again."},

	// 5xxx
	ErrUnknown:            {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrBackendUnavailable: {Code: ErrBackendUnavailable, Message: "A backend service is unavailable.", Status: http.StatusServiceUnavailable},
}
