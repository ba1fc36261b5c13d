// Package exam holds the identifiers an engine instance serves.
package exam

import (
	"errors"
	"fmt"
	"strings"
)

// Identity is the (room, participant) pair one engine instance serves. It is
// immutable for the life of the instance; a redirect produces a new one.
type Identity struct {
	Room            string
	ParticipantID   string
	ParticipantName string
	Email           string
	Premium         bool
}

// Question identifies the active prompt. Indexes are server-assigned.
type Question struct {
	Index int
}

func (q Question) String() string {
	return fmt.Sprintf("q%d", q.Index)
}

// Target addresses one answer delivery.
type Target struct {
	Room          string
	ParticipantID string
	Question      Question
}

func (id Identity) Validate() error {
	if strings.TrimSpace(id.Room) == "" {
		return errors.New("room code is required")
	}
	if strings.TrimSpace(id.ParticipantID) == "" {
		return errors.New("participant id is required")
	}
	return nil
}

// Target returns the delivery target for question q under this identity.
func (id Identity) Target(q Question) Target {
	return Target{Room: id.Room, ParticipantID: id.ParticipantID, Question: q}
}

// WithRoom returns the identity re-mounted against another room.
func (id Identity) WithRoom(room string) Identity {
	next := id
	next.Room = room
	return next
}

// SameParticipant reports whether the target belongs to identity id.
func (t Target) SameParticipant(id Identity) bool {
	return t.Room == id.Room && t.ParticipantID == id.ParticipantID
}
