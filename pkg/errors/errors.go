package errors

import (
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Protocol errors
	ErrInvalidSignature ErrorCode = "PROTOCOL_INVALID_SIGNATURE"
	ErrWrongOpCode      ErrorCode = "PROTOCOL_WRONG_OPCODE"
	ErrTruncated        ErrorCode = "PROTOCOL_TRUNCATED"
	ErrTrailingBytes    ErrorCode = "PROTOCOL_TRAILING_BYTES"
	ErrOutOfData        ErrorCode = "PROTOCOL_OUT_OF_DATA"

	// Validation errors
	ErrInvalidBucketID   ErrorCode = "VALIDATION_INVALID_BUCKET_ID"
	ErrInvalidKey        ErrorCode = "VALIDATION_INVALID_KEY"
	ErrUnknownPolicyType ErrorCode = "VALIDATION_UNKNOWN_POLICY_TYPE"

	// Storage errors
	ErrBucketNotFound      ErrorCode = "STORAGE_BUCKET_NOT_FOUND"
	ErrBucketReferenced    ErrorCode = "STORAGE_BUCKET_REFERENCED"
	ErrDefaultBucketDelete ErrorCode = "STORAGE_DEFAULT_BUCKET_DELETE"
	ErrDatabaseCorrupted   ErrorCode = "STORAGE_DATABASE_CORRUPTED"
	ErrDatabaseReadOnly    ErrorCode = "STORAGE_DATABASE_READ_ONLY"
	ErrFileLock            ErrorCode = "STORAGE_FILE_LOCK"
	ErrCannotCreateFile    ErrorCode = "STORAGE_CANNOT_CREATE_FILE"

	// Peer errors
	ErrPeerDisconnected ErrorCode = "PEER_DISCONNECTED"
	ErrAccessDenied     ErrorCode = "PEER_ACCESS_DENIED"

	// Plugin and agent errors
	ErrPluginNotFound ErrorCode = "PLUGIN_NOT_FOUND"
	ErrAgentNotFound  ErrorCode = "AGENT_NOT_FOUND"

	// Generic errors
	ErrInvalidConfig   ErrorCode = "INVALID_CONFIG"
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCapacity        ErrorCode = "CAPACITY"
	ErrInternal        ErrorCode = "INTERNAL"
)

// CorruptionKind narrows a STORAGE_DATABASE_CORRUPTED error to its cause
type CorruptionKind string

const (
	// CorruptionChecksum means a file hash did not match the checksum record
	CorruptionChecksum CorruptionKind = "checksum"
	// CorruptionRecord means a record in a database file could not be parsed
	CorruptionRecord CorruptionKind = "record"
	// CorruptionDanglingBucket means a BUCKET policy names a missing bucket
	CorruptionDanglingBucket CorruptionKind = "dangling_bucket"
	// CorruptionMissingFile means a file named in the index does not exist
	CorruptionMissingFile CorruptionKind = "missing_file"
	// CorruptionVersion means the index header declares an unknown schema
	CorruptionVersion CorruptionKind = "version"
)

// GatekeeprError is a custom error type with error code and context
type GatekeeprError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Fields  map[string]interface{}
}

// Error implements the error interface
func (e *GatekeeprError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *GatekeeprError) Unwrap() error {
	return e.Cause
}

// WithField adds a context field to the error
func (e *GatekeeprError) WithField(key string, value interface{}) *GatekeeprError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New creates a new GatekeeprError
func New(code ErrorCode, message string) *GatekeeprError {
	return &GatekeeprError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a GatekeeprError
func Wrap(code ErrorCode, message string, cause error) *GatekeeprError {
	return &GatekeeprError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if ge, ok := err.(*GatekeeprError); ok {
		return ge.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ge, ok := err.(*GatekeeprError); ok {
		return ge.Code
	}
	return ErrInternal
}

// Corrupted creates a database corruption error for the given kind
func Corrupted(kind CorruptionKind, message string) *GatekeeprError {
	return New(ErrDatabaseCorrupted, message).WithField("kind", string(kind))
}

// CorruptedLine creates a database corruption error pointing at a line
func CorruptedLine(kind CorruptionKind, message string, line int) *GatekeeprError {
	return Corrupted(kind, message).WithField("line", line)
}

// GetCorruptionKind extracts the corruption kind from an error, if any
func GetCorruptionKind(err error) (CorruptionKind, bool) {
	ge, ok := err.(*GatekeeprError)
	if !ok || ge.Code != ErrDatabaseCorrupted {
		return "", false
	}
	kind, ok := ge.Fields["kind"].(string)
	return CorruptionKind(kind), ok
}
