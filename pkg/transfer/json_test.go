package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodecWireFormat(t *testing.T) {
	codec := NewJSONCodec()

	tests := []struct {
		frame ControlFrame
		want  string
	}{
		{FileFrame("dir/a.txt", 0), `{"type":"file","name":"dir/a.txt","size":0}`},
		{FileEndFrame(), `{"type":"file-end"}`},
		{AllFilesEndFrame(), `{"type":"all-files-end"}`},
		{AllFilesReceivedFrame(), `{"type":"all-files-received"}`},
		{TextFrame(""), `{"type":"text","content":""}`},
		{SigintFrame(), `{"type":"sigint"}`},
		{ErrorFrame("Incomplete file transfer"), `{"type":"error","message":"Incomplete file transfer"}`},
		{FileCountFrame(3), `{"type":"file-count","count":3}`},
	}
	for _, tt := range tests {
		t.Run(string(tt.frame.Type), func(t *testing.T) {
			got, err := codec.Encode(tt.frame)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestJSONCodecDecodeRejects(t *testing.T) {
	codec := NewJSONCodec()

	_, err := codec.Decode([]byte(`{"type":"file","name":"a"}`))
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = codec.Decode([]byte(`{"type":"file","name":"a","size":-1}`))
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = codec.Decode([]byte(`{"type":"text"}`))
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = codec.Decode([]byte(`{"type":"resume"}`))
	assert.ErrorIs(t, err, ErrUnknownFrame)

	_, err = codec.Decode([]byte{0xff, 0x00, 0x7b})
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = codec.Encode(ControlFrame{Type: "resume"})
	assert.ErrorIs(t, err, ErrUnknownFrame)
}

func TestJSONCodecDecodeFile(t *testing.T) {
	frame, err := NewJSONCodec().Decode([]byte(`{"type":"file","name":"x/y.bin","size":70000}`))
	require.NoError(t, err)
	assert.Equal(t, FileFrame("x/y.bin", 70000), frame)
}
