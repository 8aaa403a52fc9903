package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeValidation          ErrorCode = 100
	ErrCodeInvalidAllocation   ErrorCode = 101
	ErrCodeInvalidStageCount   ErrorCode = 102
	ErrCodeInvalidPercentage   ErrorCode = 103
	ErrCodeInvalidConfig       ErrorCode = 104
	ErrCodeMissingParameter    ErrorCode = 105
	ErrCodeInvalidFeedProvider ErrorCode = 106

	// Session errors (200-299)
	ErrCodeSessionNotFound    ErrorCode = 200
	ErrCodeStateConflict      ErrorCode = 201
	ErrCodePreconditionFailed ErrorCode = 202
	ErrCodeInvariantViolation ErrorCode = 203
	ErrCodeStageNotFound      ErrorCode = 204
	ErrCodePositionNotFound   ErrorCode = 205

	// Trigger pipeline errors (300-399)
	ErrCodeFeedUnavailable ErrorCode = 300
	ErrCodeTriggerFailed   ErrorCode = 301
	ErrCodeOrderFailed     ErrorCode = 302
	ErrCodeZeroQuantity    ErrorCode = 303

	// Storage errors (400-499)
	ErrCodeStoreFailed   ErrorCode = 400
	ErrCodeStoreNotReady ErrorCode = 401
)
