package decoder

import (
	"errors"
	"strings"
)

// ErrDecodeFailed is returned when a payload cannot be decoded at all, for
// example when no strategy is registered for the channel type. A payload that
// decodes cleanly but names no plate or container is an empty Result, not an error.
var ErrDecodeFailed = errors.New("decode failed")

// Picture kinds. The kind becomes part of the saved file name.
const (
	KindDetection    = "detection"
	KindLicensePlate = "licensePlate"
)

// Type is the camera dialect tag a channel is started with.
type Type string

const (
	LPR Type = "LPR"
	CNR Type = "CNR"
)

// ParseType normalises a user supplied tag ("lpr", " CNR ") to its canonical form.
// An empty tag defaults to LPR.
func ParseType(s string) Type {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return LPR
	}
	return Type(s)
}

func (t Type) String() string {
	return string(t)
}

// Payload is one complete camera message: the body and the content type it was sent with.
type Payload struct {
	ContentType string
	Body        []byte
}

// Image is a picture attached to a camera event.
type Image struct {
	// Kind is KindDetection or KindLicensePlate.
	Kind     string
	Filename string
	Data     []byte
}

// Result is a decoded camera event.
type Result struct {
	Plate     string
	Container string
	Images    []Image
}

// Texts returns the non-empty event texts in delivery order: plate first, then container.
func (r Result) Texts() []string {
	texts := make([]string, 0, 2)
	if r.Plate != "" {
		texts = append(texts, r.Plate)
	}
	if r.Container != "" {
		texts = append(texts, r.Container)
	}
	return texts
}

// Empty reports whether the event carried neither a plate nor a container number.
func (r Result) Empty() bool {
	return r.Plate == "" && r.Container == ""
}
