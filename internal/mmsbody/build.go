// Package mmsbody builds and parses the multipart/mixed bodies used to send
// and receive MMS: a metadata part followed by the attachments.
package mmsbody

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

const (
	jsonPartType = "application/json; charset=utf-8"
	textPartType = "text/plain; charset=utf-8"
)

// Body is a finished multipart/mixed body.
type Body struct {
	contentType string
	boundary    string
	data        []byte
}

// ContentType returns the value for the request's Content-Type header,
// boundary included.
func (b *Body) ContentType() string { return b.contentType }

// Boundary returns the multipart boundary.
func (b *Body) Boundary() string { return b.boundary }

// Bytes returns the encoded body.
func (b *Body) Bytes() []byte { return b.data }

// Build encodes metadata as the first part and each attachment as a
// following part, in order. Media attachments must be image, audio or video.
func Build(metadata any, attachments []Attachment) (*Body, error) {
	meta, err := encodeJSON(metadata)
	if err != nil {
		return nil, fmt.Errorf("mmsbody: encode metadata: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writePart(w, partHeader(jsonPartType, "8bit", false), meta); err != nil {
		return nil, err
	}

	for i, a := range attachments {
		var (
			contentType string
			data        []byte
			src         io.Reader
		)
		switch a := a.(type) {
		case Text:
			if err := writePart(w, partHeader(textPartType, "8bit", false), []byte(a)); err != nil {
				return nil, err
			}
			continue
		case Binary:
			contentType, data = a.ContentType, a.Data
		case File:
			if a.Reader == nil {
				return nil, fmt.Errorf("mmsbody: attachment #%d: file %q has no reader", i, a.Name)
			}
			contentType, src = TypeByName(a.Name), a.Reader
		default:
			return nil, fmt.Errorf("mmsbody: attachment #%d: unsupported type %T", i, a)
		}
		if err := checkMediaType(contentType, i); err != nil {
			return nil, err
		}
		if src != nil {
			if data, err = io.ReadAll(src); err != nil {
				return nil, fmt.Errorf("mmsbody: read attachment #%d: %w", i, err)
			}
		}
		if err := writePart(w, partHeader(contentType, "binary", true), data); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("mmsbody: close multipart writer: %w", err)
	}

	return &Body{
		contentType: mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": w.Boundary()}),
		boundary:    w.Boundary(),
		data:        buf.Bytes(),
	}, nil
}

func checkMediaType(contentType string, index int) error {
	invalid := NewContentTypeError(contentType, index, "invalid Content-Type %q in attachment #%d", contentType, index)
	if strings.IndexFunc(contentType, func(r rune) bool { return r < ' ' || r == 0x7f }) >= 0 {
		return invalid
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return invalid
	}
	top, sub, ok := strings.Cut(mt, "/")
	if !ok || top == "" || sub == "" || strings.Contains(sub, "/") {
		return invalid
	}
	switch top {
	case "image", "audio", "video":
		return nil
	}
	return NewContentTypeError(contentType, index,
		"unsupported Content-Type %q in attachment #%d (only image, audio or video are supported)", contentType, index)
}

func partHeader(contentType, encoding string, attachment bool) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", encoding)
	if attachment {
		h.Set("Content-Disposition", "attachment")
	}
	return h
}

func writePart(w *multipart.Writer, h textproto.MIMEHeader, data []byte) error {
	pw, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("mmsbody: create part: %w", err)
	}
	if _, err := pw.Write(data); err != nil {
		return fmt.Errorf("mmsbody: write part: %w", err)
	}
	return nil
}

// encodeJSON marshals v as UTF-8 JSON without HTML escaping.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
