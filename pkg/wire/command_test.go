package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundTrip(t *testing.T) {
	cases := []*Command{
		{PutReq: &PutReq{File: "dataset.txt"}},
		{PutData: &PutData{Machine: "10.0.0.1_56552_7", File: "dataset.txt", Offset: 4096, Bytes: []byte("payload")}},
		{GetReq: &GetReq{File: "dataset.txt"}},
		{Delete: &Delete{File: "dataset.txt"}},
		{LsRes: &LsRes{Machines: []string{"10.0.0.1_56552_1", "10.0.0.2_56552_2"}}},
		{Ack: &Ack{Msg: "ok"}},
		{Fail: &Fail{Msg: "not found"}},
		{LeaderPutReq: &LeaderPutReq{Machine: "10.0.0.1_56552_1", File: "dataset.txt"}},
		{MultiWrite: &MultiWrite{Local: "/tmp/in.txt", Sdfs: "dataset.txt", LeaderIP: "10.0.0.9"}},
		{MapReq: &MapReq{Executable: "wc.py", NumWorkers: 3, OutputPrefix: "out", InputPrefix: "in", Args: []string{"-l"}}},
		{ReduceReq: &ReduceReq{Executable: "sum.py", NumWorkers: 2, InputPrefix: "out", OutputFile: "final.txt", DeleteAfter: true}},
		{FileSizeRes: &FileSizeRes{Size: 128}},
		{
			LeaderReduceReq: &LeaderReduceReq{
				KeyServerMap: map[string]KeyServers{
					"alice": {Servers: []string{"10.0.0.1_56552_1", "10.0.0.2_56552_2"}},
				},
				TargetServer: "10.0.0.3_56552_3",
				OutputFile:   "final.txt",
				Executable:   "sum.py",
				InputPrefix:  "out",
			},
		},
	}

	for _, want := range cases {
		encoded, err := want.Marshal()
		require.NoError(t, err)
		got, err := UnmarshalCommand(encoded)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCommandMarshalRequiresOneVariant(t *testing.T) {
	_, err := (&Command{}).Marshal()
	assert.Error(t, err)
}

func TestUnmarshalCommandRejectsMultipleVariants(t *testing.T) {
	a, err := (&Command{PutReq: &PutReq{File: "x"}}).Marshal()
	require.NoError(t, err)
	bmsg, err := (&Command{GetReq: &GetReq{File: "y"}}).Marshal()
	require.NoError(t, err)

	_, err = UnmarshalCommand(append(a, bmsg...))
	assert.Error(t, err)
}

func TestWriteReadCommandFraming(t *testing.T) {
	var buf bytes.Buffer
	cmd := &Command{GetData: &GetData{Machine: "10.0.0.1_56552_1", File: "dataset.txt", Offset: 10, Bytes: []byte("hi")}}

	require.NoError(t, WriteCommand(&buf, cmd))
	got, err := ReadCommand(&buf)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}
