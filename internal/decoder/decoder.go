// Package decoder turns camera payloads into event text.
//
// Each channel type selects one decoding strategy from a Table. The built-in
// strategies understand the ANPR/container XML documents pushed by traffic
// cameras, either bare or wrapped in a multipart body with attached pictures.
package decoder

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"strings"
	"sync"
)

// Func decodes one payload.
type Func func(p Payload) (Result, error)

var (
	plateTags     = []string{"licensePlate", "plateNumber", "originalLicensePlate", "carCard"}
	containerTags = []string{"containerNumber", "containerNo", "containerID", "container", "containerNum"}
)

// Table maps a channel type to its decoding strategy. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	funcs map[Type]Func
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{funcs: make(map[Type]Func)}
}

// Default returns a table with the LPR and CNR strategies registered.
func Default() *Table {
	t := NewTable()
	t.Register(LPR, DecodeLPR)
	t.Register(CNR, DecodeCNR)
	return t
}

// Register adds or replaces the strategy for typ.
func (t *Table) Register(typ Type, fn Func) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.funcs[typ] = fn
}

// Lookup returns the strategy registered for typ.
func (t *Table) Lookup(typ Type) (Func, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.funcs[typ]
	return fn, ok
}

// Decode runs the strategy registered for typ.
func (t *Table) Decode(typ Type, p Payload) (Result, error) {
	fn, ok := t.Lookup(typ)
	if !ok {
		return Result{}, fmt.Errorf("no decoder for channel type %q: %w", typ, ErrDecodeFailed)
	}
	return fn(p)
}

// DecodeLPR decodes a plate-recognition event. Both the overview picture and
// any plate close-up are kept.
func DecodeLPR(p Payload) (Result, error) {
	return decode(p, true)
}

// DecodeCNR decodes a container-number event. Only the overview picture is kept.
func DecodeCNR(p Payload) (Result, error) {
	return decode(p, false)
}

func decode(p Payload, plateImages bool) (Result, error) {
	doc, attachments := split(p)

	res := Result{
		Plate:     firstValue(doc, plateTags...),
		Container: containerValue(doc),
	}
	// 하트비트, 비디오 손실 등 번호가 없는 알림은 에러가 아닌 빈 결과
	if res.Empty() {
		return Result{}, nil
	}

	plateSeen := false
	for _, a := range attachments {
		name := strings.ToLower(a.Filename)
		switch {
		case name == "detectionpicture.jpg":
			a.Kind = KindDetection
		case plateImages && !plateSeen && strings.Contains(name, "plate"):
			a.Kind = KindLicensePlate
			plateSeen = true
		default:
			continue
		}
		res.Images = append(res.Images, a)
	}

	return res, nil
}

// containerValue joins the split container fields when present, otherwise
// falls back to the single-field spellings used by older firmware.
func containerValue(doc string) string {
	if mainNum := firstValue(doc, "containerMainNum"); mainNum != "" {
		return mainNum + firstValue(doc, "containerSubNum") + firstValue(doc, "containerISONum")
	}
	return firstValue(doc, containerTags...)
}

// split separates the textual document from attached files. Non-multipart
// payloads, and multipart payloads that cannot be parsed, are treated as text.
func split(p Payload) (string, []Image) {
	mediaType, params, err := mime.ParseMediaType(p.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return string(p.Body), nil
	}

	var (
		doc    strings.Builder
		images []Image
		parts  int
	)

	mr := multipart.NewReader(bytes.NewReader(p.Body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			break
		}
		parts++

		if isText(part.Header.Get("Content-Type"), part.FileName()) {
			doc.Write(data)
			doc.WriteByte('\n')
			continue
		}
		if part.FileName() != "" {
			images = append(images, Image{Filename: part.FileName(), Data: data})
		}
	}

	if parts == 0 {
		return string(p.Body), nil
	}
	return doc.String(), images
}

func isText(contentType, filename string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "xml") || strings.Contains(ct, "json") || strings.HasPrefix(ct, "text/") {
		return true
	}
	if filename == "" {
		return ct == ""
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".xml", ".json", ".txt":
		return true
	}
	return false
}
