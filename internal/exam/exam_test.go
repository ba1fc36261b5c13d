package exam

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityValidate(t *testing.T) {
	require.NoError(t, Identity{Room: "ABC123", ParticipantID: "42"}.Validate())
	require.ErrorContains(t, Identity{ParticipantID: "42"}.Validate(), "room code")
	require.ErrorContains(t, Identity{Room: "ABC123", ParticipantID: "  "}.Validate(), "participant id")
}

func TestIdentityWithRoomKeepsParticipant(t *testing.T) {
	id := Identity{Room: "A", ParticipantID: "7", ParticipantName: "Ada", Premium: true}
	next := id.WithRoom("B")

	require.Equal(t, "A", id.Room)
	require.Equal(t, "B", next.Room)
	require.Equal(t, id.ParticipantName, next.ParticipantName)
	require.True(t, next.Premium)
}

func TestTargetSameParticipant(t *testing.T) {
	id := Identity{Room: "A", ParticipantID: "7"}
	target := id.Target(Question{Index: 3})

	require.Equal(t, "q3", target.Question.String())
	require.True(t, target.SameParticipant(id))
	require.False(t, target.SameParticipant(id.WithRoom("B")))
	require.False(t, target.SameParticipant(Identity{Room: "A", ParticipantID: "8"}))
}
