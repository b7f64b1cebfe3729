package errs

import "net/http"

// errorMap holds the template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Malformed request body.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx
	ErrContentEmpty:          {Code: ErrContentEmpty, Message: "Message content cannot be empty.", Status: http.StatusBadRequest},
	ErrContentTooLong:        {Code: ErrContentTooLong, Message: "Message must be at most %d characters.", Status: http.StatusBadRequest},
	ErrGuestNameRequired:     {Code: ErrGuestNameRequired, Message: "A display name is required to post as a guest.", Status: http.StatusBadRequest},
	ErrGuestNameInvalid:      {Code: ErrGuestNameInvalid, Message: "Display name must be between %d and %d characters.", Status: http.StatusBadRequest},
	ErrChannelNameInvalid:    {Code: ErrChannelNameInvalid, Message: "Channel name must be between %d and %d characters.", Status: http.StatusBadRequest},
	ErrDescriptionTooLong:    {Code: ErrDescriptionTooLong, Message: "Description must be at most %d characters.", Status: http.StatusBadRequest},
	ErrInvalidStatus:         {Code: ErrInvalidStatus, Message: "Status must be one of online, away, offline.", Status: http.StatusBadRequest},
	ErrInvalidUsername:       {Code: ErrInvalidUsername, Message: "Invalid username.", Status: http.StatusBadRequest},
	ErrInvalidEmail:          {Code: ErrInvalidEmail, Message: "Invalid email address.", Status: http.StatusBadRequest},
	ErrInvalidPassword:       {Code: ErrInvalidPassword, Message: "Invalid password.", Status: http.StatusBadRequest},
	ErrCannotMessageSelf:     {Code: ErrCannotMessageSelf, Message: "You cannot send a direct message to yourself.", Status: http.StatusBadRequest},
	ErrUnsupportedEventType:  {Code: ErrUnsupportedEventType, Message: "Unsupported event type.", Status: http.StatusBadRequest},
	ErrChannelNameTaken:      {Code: ErrChannelNameTaken, Message: "Channel name is already taken.", Status: http.StatusBadRequest},
	ErrAlreadyMember:         {Code: ErrAlreadyMember, Message: "You are already a member of this channel.", Status: http.StatusConflict},
	ErrNotMember:             {Code: ErrNotMember, Message: "You are not a member of this channel.", Status: http.StatusConflict},
	ErrUserAlreadyExists:     {Code: ErrUserAlreadyExists, Message: "Username or email is already taken.", Status: http.StatusConflict},
	ErrConnectionLimitExceed: {Code: ErrConnectionLimitExceed, Message: "Server is at capacity. Please try again later.", Status: http.StatusServiceUnavailable},

	// 3xxx
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrForbidden:            {Code: ErrForbidden, Message: "You do not have access to this resource.", Status: http.StatusForbidden},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Incorrect username or password.", Status: http.StatusUnauthorized},
	ErrAlreadyLoggedIn:      {Code: ErrAlreadyLoggedIn, Message: "You are already signed in.", Status: http.StatusBadRequest},
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInternal: {Code: ErrPowChallengeInternal, Message: "Verification service error. Please try again later.", Status: http.StatusInternalServerError},

	// 4xxx
	ErrChannelNotFound: {Code: ErrChannelNotFound, Message: "Channel not found.", Status: http.StatusNotFound},
	ErrUserNotFound:    {Code: ErrUserNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrMessageNotFound: {Code: ErrMessageNotFound, Message: "Message not found.", Status: http.StatusNotFound},

	// 5xxx
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
