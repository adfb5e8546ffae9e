package apperrors

const (
	// Generic codes
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeConflict            = "CONFLICT"
	CodeInternalServer      = "INTERNAL_SERVER"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeEventPublishError   = "EVENT_PUBLISH_ERROR"
	CodeObjectMarshalError  = "OBJECT_MARSHALL_ERROR"
	CodeDatabaseError       = "DATABASE_ERROR"
	CodeTransactionError    = "TRANSACTION_ERROR"
	CodeRedisOperationError = "REDIS_ERROR"

	// Domain codes
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeEmailMismatch   = "EMAIL_MISMATCH"
	CodeInvalidStatus   = "INVALID_STATUS"
	CodeSnapshotCapture = "SNAPSHOT_CAPTURE_FAILED"
)
