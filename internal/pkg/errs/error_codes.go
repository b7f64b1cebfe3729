/*
Package errs provides the application error type and its code constants.

Codes are grouped by family so both the server and clients can classify a failure
without parsing messages.
*/
package errs

// 1xxx: request shape
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates a malformed JSON body.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing data after a valid JSON document.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the caller is sending too many requests.
	ErrRateLimitExceeded = 1007
)

// 2xxx: validation and domain conflicts
const (
	ErrContentEmpty          = 2001
	ErrContentTooLong        = 2002
	ErrGuestNameRequired     = 2003
	ErrGuestNameInvalid      = 2004
	ErrChannelNameInvalid    = 2005
	ErrDescriptionTooLong    = 2006
	ErrInvalidStatus         = 2007
	ErrInvalidUsername       = 2008
	ErrInvalidEmail          = 2009
	ErrInvalidPassword       = 2010
	ErrCannotMessageSelf     = 2011
	ErrUnsupportedEventType  = 2012
	ErrChannelNameTaken      = 2101
	ErrAlreadyMember         = 2102
	ErrNotMember             = 2103
	ErrUserAlreadyExists     = 2104
	ErrConnectionLimitExceed = 2105
)

// 3xxx: identity and authorization
const (
	// ErrUnauthorized indicates that a valid credential is required and missing.
	ErrUnauthorized = 3001

	// ErrForbidden indicates a valid identity without sufficient rights.
	ErrForbidden = 3002

	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = 3003

	// ErrAlreadyLoggedIn indicates a login or register attempt while carrying a user token.
	ErrAlreadyLoggedIn = 3004

	// ErrPowChallengeRequired indicates the client must complete a proof-of-work challenge first.
	ErrPowChallengeRequired = 3101

	// ErrPowChallengeInvalid indicates an invalid or expired proof-of-work answer.
	ErrPowChallengeInvalid = 3102

	// ErrPowChallengeInternal indicates the challenge store failed.
	ErrPowChallengeInternal = 3103
)

// 4xxx: not found
const (
	ErrChannelNotFound = 4001
	ErrUserNotFound    = 4002
	ErrMessageNotFound = 4003
)

// 5xxx: internal
const (
	// ErrUnknown represents an unclassified server-side failure.
	ErrUnknown = 5000
)
