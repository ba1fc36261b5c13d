package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyPriorityTable(t *testing.T) {
	tests := []struct {
		name   string
		sig    Signal
		action Action
		reason string
	}{
		{name: "invalid", sig: Signal{Code: CodeInvalid}, action: ActionRedirect, reason: "invalid"},
		{name: "closed", sig: Signal{Code: CodeClosed}, action: ActionRedirect, reason: "closed"},
		{name: "continue", sig: Signal{Code: CodeContinue}, action: ActionNone, reason: "continue"},
		{name: "removed", sig: Signal{Code: CodeRemoved}, action: ActionRedirect, reason: "removed"},
		{name: "hard timeout", sig: Signal{Code: CodeHardTimeout}, action: ActionForceStop, reason: "hard_timeout"},
		{name: "soft timeout", sig: Signal{Code: CodeSoftTimeout}, action: ActionWarn, reason: "soft_timeout"},
		{name: "advance", sig: Signal{Code: CodeAdvance, Redirect: "ROOM2"}, action: ActionAdvance, reason: "advance"},
		{name: "advance without room", sig: Signal{Code: CodeAdvance}, action: ActionRedirect, reason: "advance without destination"},
		{name: "out of range", sig: Signal{Code: 42}, action: ActionRedirect, reason: "unrecognized status 42"},
		{name: "negative", sig: Signal{Code: -1}, action: ActionRedirect, reason: "unrecognized status -1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Classify(tc.sig)
			require.Equal(t, tc.action, v.Action)
			require.Equal(t, tc.reason, v.Reason)
		})
	}
}

func TestClassifyUnknownMatchesExplicitRedirect(t *testing.T) {
	unknown := Classify(Signal{Code: 99})
	closed := Classify(Signal{Code: CodeClosed})
	require.Equal(t, closed.Action, unknown.Action)
	require.True(t, unknown.Terminal())
	require.Nil(t, unknown.Deadline)
}

func TestClassifyAdvanceCarriesRoom(t *testing.T) {
	v := Classify(Signal{Code: CodeAdvance, Redirect: "  NEXT1 "})
	require.Equal(t, "NEXT1", v.Room)
	require.True(t, v.Terminal())
}

func TestClassifyDeadlineRefreshNeedsBothFields(t *testing.T) {
	started := time.UnixMilli(1_700_000_000_000)
	limit := 30 * time.Second
	zero := time.Duration(0)

	v := Classify(Signal{Code: CodeContinue, Started: &started, Limit: &limit})
	require.NotNil(t, v.Deadline)
	require.Equal(t, started, v.Deadline.Anchor)
	require.Equal(t, limit, v.Deadline.Limit)

	require.Nil(t, Classify(Signal{Code: CodeContinue, Started: &started}).Deadline)
	require.Nil(t, Classify(Signal{Code: CodeContinue, Limit: &limit}).Deadline)
	require.Nil(t, Classify(Signal{Code: CodeContinue, Started: &started, Limit: &zero}).Deadline)

	require.NotNil(t, Classify(Signal{Code: CodeSoftTimeout, Started: &started, Limit: &limit}).Deadline)
	require.Nil(t, Classify(Signal{Code: CodeClosed, Started: &started, Limit: &limit}).Deadline)
}

func TestWarningMessageSelectsBranchBeforeConcatenating(t *testing.T) {
	standard := WarningMessage(false)
	premium := WarningMessage(true)

	require.Equal(t, "About 5 seconds remain: finish your answer now.", standard)
	require.Contains(t, premium, "About 5 seconds remain: ")
	require.Contains(t, premium, "saved automatically")
	require.NotContains(t, premium, "true")
	require.NotContains(t, standard, "false")
}
