package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/baaaht/fifoipc/pkg/types"
)

func TestByName(t *testing.T) {
	c, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, NameBytes, c.Name())

	c, err = ByName("proto")
	require.NoError(t, err)
	assert.Equal(t, NameProto, c.Name())

	_, err = ByName("gob")
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
}

func TestBytesCodec(t *testing.T) {
	c := Bytes{}

	b, err := c.Marshal("hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	b, err = c.Marshal(nil)
	require.NoError(t, err)
	assert.Empty(t, b)

	_, err = c.Marshal(42)
	assert.Error(t, err)

	src := []byte{1, 2, 3}
	v, err := c.Unmarshal(src)
	require.NoError(t, err)
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, v, "unmarshal must not alias the input")
}

func TestProtoCodec(t *testing.T) {
	c := Proto{}

	b, err := c.Marshal(wrapperspb.String("ping"))
	require.NoError(t, err)

	v, err := c.Unmarshal(b)
	require.NoError(t, err)
	msg, ok := v.(*wrapperspb.StringValue)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, "ping", msg.GetValue())

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	b, err = c.Marshal(wrapperspb.Bytes(payload))
	require.NoError(t, err)
	v, err = c.Unmarshal(b)
	require.NoError(t, err)
	assert.True(t, proto.Equal(wrapperspb.Bytes(payload), v.(proto.Message)))
}

func TestProtoCodecErrors(t *testing.T) {
	c := Proto{}

	_, err := c.Marshal("not a message")
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))

	_, err = c.Unmarshal([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeProtocol))
}
