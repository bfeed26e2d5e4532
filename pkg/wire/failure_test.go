package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureDetectionRoundTrip(t *testing.T) {
	cases := []*FailureDetection{
		{
			MemberList: &MemberList{
				SenderId: "10.0.0.1_12307_1",
				Members: []*MemberEntry{
					{Id: "10.0.0.1_12307_1", Heartbeat: 5, LastSeen: "2026-07-29T12:00:00Z"},
					{Id: "10.0.0.2_12307_2", Heartbeat: 3, LastSeen: "2026-07-29T12:00:01Z"},
				},
			},
		},
		{Coordinator: &Coordinator{LeaderId: "10.0.0.1_12307_1"}},
		{Election: &Election{SenderId: "10.0.0.2_12307_2"}},
		{Ok: &Ok{SenderId: "10.0.0.1_12307_1"}},
	}

	for _, want := range cases {
		encoded, err := want.Marshal()
		require.NoError(t, err)
		got, err := UnmarshalFailureDetection(encoded)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFailureDetectionEmptyRecord(t *testing.T) {
	_, err := UnmarshalFailureDetection(nil)
	assert.Error(t, err)
}
