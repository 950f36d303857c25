package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Type classifies what kind of fact a memory holds.
type Type string

const (
	TypePersonal     Type = "personal"
	TypePreference   Type = "preference"
	TypeRelationship Type = "relationship"
	TypeGoal         Type = "goal"
	TypeExperience   Type = "experience"
	TypeSkill        Type = "skill"
	TypeFact         Type = "fact"
)

// AllTypes lists every valid memory type in display order.
var AllTypes = []Type{
	TypePersonal,
	TypePreference,
	TypeRelationship,
	TypeGoal,
	TypeExperience,
	TypeSkill,
	TypeFact,
}

func (t Type) Valid() bool {
	switch t {
	case TypePersonal, TypePreference, TypeRelationship, TypeGoal, TypeExperience, TypeSkill, TypeFact:
		return true
	default:
		return false
	}
}

// MaxKeyLength bounds the key column; longer keys are rejected, not truncated.
const MaxKeyLength = 200

// Memory is a single (user, key) -> value fact with usage metadata.
type Memory struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Type            Type      `json:"type"`
	Key             string    `json:"key"`
	Value           string    `json:"value"`
	Confidence      float64   `json:"confidence"`
	Importance      int       `json:"importance"`
	FirstMentioned  time.Time `json:"first_mentioned"`
	LastAccessed    time.Time `json:"last_accessed"`
	AccessCount     int       `json:"access_count"`
	SourceMessageID string    `json:"source_message_id,omitempty"`
}

// Fields carries the mutable part of a memory for an upsert. On update the
// store replaces all of these and increments the access count; FirstMentioned
// and the row identity are never touched.
type Fields struct {
	Type            Type
	Value           string
	Confidence      float64
	Importance      int
	SourceMessageID string
}

func (f Fields) Validate() error {
	if !f.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown memory type %q", f.Type)}
	}
	if f.Value == "" {
		return &ValidationError{Field: "value", Reason: "must not be empty"}
	}
	if f.Importance < 1 || f.Importance > 10 {
		return &ValidationError{Field: "importance", Reason: fmt.Sprintf("%d out of range 1-10", f.Importance)}
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%g out of range 0-1", f.Confidence)}
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "key", Reason: "must not be empty"}
	}
	if len(key) > MaxKeyLength {
		return &ValidationError{Field: "key", Reason: fmt.Sprintf("longer than %d bytes", MaxKeyLength)}
	}
	return nil
}

// ValidationError reports a malformed upsert field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid memory %s: %s", e.Field, e.Reason)
}

var (
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrMemoryNotFound is returned when a single memory lookup misses.
	ErrMemoryNotFound = errors.New("memory not found")
	// ErrUnavailable wraps failures to reach the durable backend.
	ErrUnavailable = errors.New("memory store unavailable")
)

// Query filters and bounds a memory listing. Results are always ordered by
// importance descending, then last accessed descending, then ID ascending so
// that ties resolve the same way on every backend.
type Query struct {
	UserID string
	Types  []Type
	Limit  int
}

// Store is the persistence contract for memories. All operations are scoped
// to a single user; cross-user access is not exposed.
type Store interface {
	// Upsert creates the (userID, key) memory or updates it in place,
	// returning the stored row and whether it was newly created. Concurrent
	// upserts of the same pair must converge to a single row.
	Upsert(ctx context.Context, userID, key string, fields Fields) (Memory, bool, error)
	// Query lists memories matching q in ranking order.
	Query(ctx context.Context, q Query) ([]Memory, error)
	// Touch increments the access count and refreshes the last-accessed time.
	Touch(ctx context.Context, id string, at time.Time) error
	// Delete removes a single memory owned by userID.
	Delete(ctx context.Context, userID, id string) error
	// DeleteByUser removes all of a user's memories, optionally limited to
	// the given types. Returns the number of rows removed.
	DeleteByUser(ctx context.Context, userID string, types ...Type) (int, error)
	Close() error
}

// UserDirectory answers whether a user exists. The extractor and retriever
// refuse to operate on unknown users; the accounts store implements this.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
