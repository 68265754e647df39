package ogg

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePage(t *testing.T, w *bytes.Buffer, headerType byte, index uint32, lacing []byte, payload []byte) {
	t.Helper()

	h := make([]byte, pageHeaderLen)
	copy(h, pageHeaderSignature)
	h[5] = headerType
	binary.LittleEndian.PutUint64(h[6:], uint64(index)*960)
	binary.LittleEndian.PutUint32(h[14:], 0xcafe)
	binary.LittleEndian.PutUint32(h[18:], index)
	h[26] = byte(len(lacing))

	r := &Reader{checksumTable: generateChecksumTable()}
	binary.LittleEndian.PutUint32(h[22:], r.checksum(h, lacing, payload))

	w.Write(h)
	w.Write(lacing)
	w.Write(payload)
}

func idPayload() []byte {
	p := make([]byte, idPagePayloadLength)
	copy(p, idPageSignature)
	p[8] = 1
	p[9] = 2
	binary.LittleEndian.PutUint16(p[10:], 312)
	binary.LittleEndian.PutUint32(p[12:], 48000)
	return p
}

func lacingFor(size int) []byte {
	var l []byte
	for size >= 255 {
		l = append(l, 255)
		size -= 255
	}
	return append(l, byte(size))
}

func TestReader(t *testing.T) {
	tags := append([]byte(commentPageSignature), make([]byte, 8)...)
	big := bytes.Repeat([]byte{0xab}, 600)
	small := []byte{1, 2, 3}

	var buf bytes.Buffer
	writePage(t, &buf, pageHeaderTypeBeginningOfStream, 0, []byte{idPagePayloadLength}, idPayload())
	writePage(t, &buf, 0, 1, lacingFor(len(tags)), tags)
	// small fits on page 2 along with the first 510 bytes of big.
	writePage(t, &buf, 0, 2, []byte{3, 255, 255}, append(append([]byte{}, small...), big[:510]...))
	writePage(t, &buf, pageHeaderTypeContinuedPacket|pageHeaderTypeEndOfStream, 3, []byte{90}, big[510:])

	r, hdr, err := NewReader(&buf)
	require.NoError(t, err)
	require.Equal(t, &Header{Version: 1, Channels: 2, PreSkip: 312, SampleRate: 48000}, hdr)

	pkt, err := r.NextPacket()
	require.NoError(t, err)
	require.Equal(t, small, pkt)

	pkt, err = r.NextPacket()
	require.NoError(t, err)
	require.Equal(t, big, pkt)

	_, err = r.NextPacket()
	require.Equal(t, io.EOF, err)
}

func TestReaderWithoutTags(t *testing.T) {
	var buf bytes.Buffer
	writePage(t, &buf, pageHeaderTypeBeginningOfStream, 0, []byte{idPagePayloadLength}, idPayload())
	writePage(t, &buf, 0, 1, []byte{2, 2}, []byte{7, 7, 8, 8})

	r, _, err := NewReader(&buf)
	require.NoError(t, err)

	pkt, err := r.NextPacket()
	require.NoError(t, err)
	require.Equal(t, []byte{7, 7}, pkt)

	pkt, err = r.NextPacket()
	require.NoError(t, err)
	require.Equal(t, []byte{8, 8}, pkt)

	_, err = r.NextPacket()
	require.Equal(t, io.EOF, err)
}

func TestReaderErrors(t *testing.T) {
	t.Run("nil stream", func(t *testing.T) {
		_, _, err := NewReader(nil)
		require.Equal(t, errNilStream, err)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, _, err := NewReader(bytes.NewReader(bytes.Repeat([]byte{'x'}, 64)))
		require.Equal(t, errBadIDPageSignature, err)
	})

	t.Run("not opus", func(t *testing.T) {
		var buf bytes.Buffer
		p := idPayload()
		copy(p, "OpusHeaX")
		writePage(t, &buf, pageHeaderTypeBeginningOfStream, 0, []byte{idPagePayloadLength}, p)
		_, _, err := NewReader(&buf)
		require.Equal(t, errBadIDPagePayloadSignature, err)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		var buf bytes.Buffer
		writePage(t, &buf, pageHeaderTypeBeginningOfStream, 0, []byte{idPagePayloadLength}, idPayload())
		data := buf.Bytes()
		data[len(data)-1] ^= 0xff
		_, _, err := NewReader(bytes.NewReader(data))
		require.Equal(t, errChecksumMismatch, err)
	})
}
