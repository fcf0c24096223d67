package channel

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushRequest(body string) string {
	return fmt.Sprintf("POST /alarm HTTP/1.1\r\nHost: gateway\r\nContent-Type: application/xml\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
}

func TestFramer_ContentLength(t *testing.T) {
	f := newFramer(0)

	frames, err := f.feed([]byte(pushRequest("<licensePlate>A1</licensePlate>")))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "POST", frames[0].method)
	assert.Equal(t, "/alarm", frames[0].path)
	assert.Equal(t, "application/xml", frames[0].contentType)
	assert.Equal(t, "<licensePlate>A1</licensePlate>", string(frames[0].body))
	assert.Zero(t, f.buffered())
}

func TestFramer_SplitAcrossReads(t *testing.T) {
	f := newFramer(0)
	raw := pushRequest("0123456789")

	for i := 0; i < len(raw)-1; i++ {
		frames, err := f.feed([]byte{raw[i]})
		require.NoError(t, err)
		require.Empty(t, frames)
	}

	frames, err := f.feed([]byte{raw[len(raw)-1]})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "0123456789", string(frames[0].body))
}

func TestFramer_PipelinedFrames(t *testing.T) {
	f := newFramer(0)
	raw := pushRequest("first") + pushRequest("second") + "POST /x HTTP/1.1\r\n"

	frames, err := f.feed([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "first", string(frames[0].body))
	assert.Equal(t, "second", string(frames[1].body))
	assert.Equal(t, len("POST /x HTTP/1.1\r\n"), f.buffered())
}

func TestFramer_MultipartWithoutLength(t *testing.T) {
	f := newFramer(0)
	body := "--b1\r\nContent-Type: application/xml\r\n\r\n<licensePlate>M1</licensePlate>\r\n--b1--"
	head := "POST /alarm HTTP/1.1\r\nContent-Type: multipart/form-data; boundary=b1\r\n\r\n"

	frames, err := f.feed([]byte(head + body[:20]))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = f.feed([]byte(body[20:]))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, body, string(frames[0].body))
}

func TestFramer_MultipartScanIsIncremental(t *testing.T) {
	f := newFramer(0)
	head := "POST /alarm HTTP/1.1\r\nContent-Type: multipart/form-data; boundary=b1\r\n\r\n"
	body := "--b1\r\nContent-Type: image/jpeg\r\n\r\n" + strings.Repeat("J", 512) + "\r\n--b1--"

	_, err := f.feed([]byte(head))
	require.NoError(t, err)

	// 한 바이트씩 도착해도 boundary가 읽기 경계에 걸친 경우를 찾아야 함
	var frames []frame
	for i := 0; i < len(body); i++ {
		got, err := f.feed([]byte{body[i]})
		require.NoError(t, err)
		frames = append(frames, got...)
		if len(got) == 0 {
			assert.Equal(t, i+1, f.scanned)
		}
	}

	require.Len(t, frames, 1)
	assert.Equal(t, body, string(frames[0].body))
	assert.Zero(t, f.scanned)
	assert.Zero(t, f.buffered())
}

func TestFramer_NoBody(t *testing.T) {
	f := newFramer(0)
	frames, err := f.feed([]byte("GET /heartbeat HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Empty(t, frames[0].body)
}

func TestFramer_Overflow(t *testing.T) {
	f := newFramer(64)
	_, err := f.feed([]byte(pushRequest(strings.Repeat("x", 100))))
	assert.ErrorIs(t, err, errFrameTooLarge)
	assert.Zero(t, f.buffered())
}

func TestFramer_Malformed(t *testing.T) {
	t.Run("HeaderTooLong", func(t *testing.T) {
		f := newFramer(0)
		_, err := f.feed([]byte(strings.Repeat("a", headerSearchLimit+1)))
		assert.ErrorIs(t, err, errMalformedFrame)
	})

	t.Run("NotHTTP", func(t *testing.T) {
		f := newFramer(0)
		_, err := f.feed([]byte("garbage\r\n\r\n"))
		assert.ErrorIs(t, err, errMalformedFrame)
	})
}
