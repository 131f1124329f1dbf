package domain

import (
	"strconv"

	"github.com/google/uuid"

	dErrors "freewalk/pkg/domain-errors"
)

// UserID identifies a local user row. Users are keyed by UUID so identifiers
// never leak insertion order to clients.
type UserID uuid.UUID

// ViolationID identifies a violation. Violation ids are allocated in
// ascending order, which the matching engine relies on for deterministic
// candidate selection.
type ViolationID int64

// ReportID identifies an immutable report row.
type ReportID int64

// WardID identifies an administrative ward.
type WardID int64

// ParseUserID constructs a UserID from external input.
//
// Errors: CodeInvalidInput for empty, malformed or nil UUIDs.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

func (id UserID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the zero UUID.
func (id UserID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// ParseViolationID parses a positive decimal violation id.
func ParseViolationID(s string) (ViolationID, error) {
	n, err := parsePositiveInt(s, "violation id")
	if err != nil {
		return 0, err
	}
	return ViolationID(n), nil
}

func (id ViolationID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id ReportID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id WardID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be nil")
	}
	return u, nil
}

func parsePositiveInt(s, what string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	return n, nil
}
