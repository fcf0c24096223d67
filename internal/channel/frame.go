package channel

import (
	"bufio"
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strconv"
)

const (
	// 헤더 종료 마커는 버퍼 앞 4KB 안에서만 찾습니다
	headerSearchLimit = 4096
	// DefaultMaxFrameBytes는 연결당 누적 버퍼 한도입니다
	DefaultMaxFrameBytes = 10 * 1024 * 1024
)

var (
	headerTerminator = []byte("\r\n\r\n")
	ackResponse      = []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 0\r\nConnection: keep-alive\r\n\r\n")
)

// frame은 카메라가 보낸 하나의 완성된 HTTP 푸시 메시지입니다
type frame struct {
	method      string
	path        string
	contentType string
	body        []byte
}

// framer는 연결에서 읽은 바이트를 누적하여 완성된 프레임 단위로 잘라냅니다.
// 프레임 길이는 Content-Length 헤더로, 없으면 multipart 종료 boundary로 결정됩니다.
type framer struct {
	buf []byte
	max int
	// scanned는 현재 프레임 본문 중 종료 boundary를 이미 찾아본 바이트 수입니다
	scanned int
}

func newFramer(max int) *framer {
	if max <= 0 {
		max = DefaultMaxFrameBytes
	}
	return &framer{max: max}
}

// feed는 새 바이트를 추가하고 완성된 프레임들을 도착 순서대로 반환합니다.
// 버퍼 한도 초과 또는 파싱 불가능한 헤더는 에러로 반환되며 버퍼는 비워집니다.
func (f *framer) feed(p []byte) ([]frame, error) {
	f.buf = append(f.buf, p...)
	if len(f.buf) > f.max {
		size := len(f.buf)
		f.buf = nil
		f.scanned = 0
		return nil, fmt.Errorf("%w: %d bytes buffered, limit %d", errFrameTooLarge, size, f.max)
	}

	var frames []frame
	for len(f.buf) > 0 {
		fr, n, err := f.next()
		if err != nil {
			f.buf = nil
			f.scanned = 0
			return frames, err
		}
		if n == 0 {
			break
		}
		frames = append(frames, fr)
		f.buf = append(f.buf[:0], f.buf[n:]...)
		f.scanned = 0
	}
	return frames, nil
}

// buffered는 아직 프레임으로 완성되지 않은 바이트 수입니다
func (f *framer) buffered() int {
	return len(f.buf)
}

// next는 버퍼 앞쪽의 프레임 하나를 파싱합니다. 아직 완성되지 않았으면 n은 0입니다.
func (f *framer) next() (frame, int, error) {
	search := f.buf
	if len(search) > headerSearchLimit {
		search = search[:headerSearchLimit]
	}

	headerEnd := bytes.Index(search, headerTerminator)
	if headerEnd == -1 {
		if len(f.buf) >= headerSearchLimit {
			return frame{}, 0, fmt.Errorf("%w: no header terminator in first %d bytes", errMalformedFrame, headerSearchLimit)
		}
		return frame{}, 0, nil
	}
	bodyStart := headerEnd + len(headerTerminator)

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(f.buf[:bodyStart])))
	if err != nil {
		return frame{}, 0, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}

	contentType := req.Header.Get("Content-Type")
	contentLength := 0

	if cl := req.Header.Get("Content-Length"); cl != "" {
		contentLength, err = strconv.Atoi(cl)
		if err != nil || contentLength < 0 {
			return frame{}, 0, fmt.Errorf("%w: bad Content-Length %q", errMalformedFrame, cl)
		}
	} else if boundary := multipartBoundary(contentType); boundary != "" {
		end := []byte("--" + boundary + "--")
		body := f.buf[bodyStart:]
		// 이전 읽기에서 걸친 boundary를 놓치지 않도록 len(end)만큼 겹쳐서 재탐색
		from := max(f.scanned-len(end), 0)
		pos := bytes.Index(body[from:], end)
		if pos == -1 {
			f.scanned = len(body)
			return frame{}, 0, nil
		}
		contentLength = from + pos + len(end)
	}

	total := bodyStart + contentLength
	if len(f.buf) < total {
		return frame{}, 0, nil
	}

	body := make([]byte, contentLength)
	copy(body, f.buf[bodyStart:total])

	return frame{
		method:      req.Method,
		path:        req.URL.Path,
		contentType: contentType,
		body:        body,
	}, total, nil
}

func multipartBoundary(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["boundary"]
}
