package mmsbody

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// RawPart is one decoded part of a multipart body.
type RawPart struct {
	Header textproto.MIMEHeader
	Data   []byte
}

// ContentType returns the part's media type, lowercased and without
// parameters. Parts without a usable Content-Type are text/plain.
func (p RawPart) ContentType() string {
	return mediaType(p.Header.Get("Content-Type"))
}

// Parse splits a multipart body into its metadata, decoded from the first
// part, and the remaining parts. fields names the elements to extract when
// the metadata is XML. Attachment types are not restricted.
func Parse(contentType string, body []byte, fields []string) (map[string]any, []Part, error) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, nil, NewContentTypeError(contentType, -1, "invalid Content-Type %q: %v", contentType, err)
	}
	if !strings.HasPrefix(mt, "multipart/") {
		return nil, nil, NewContentTypeError(contentType, -1, "non-multipart body (Content-Type %q)", contentType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, nil, NewContentTypeError(contentType, -1, "multipart Content-Type %q has no boundary", contentType)
	}

	raw, err := ReadParts(bytes.NewReader(body), boundary)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, &ValueError{Format: "multipart", Err: errors.New("body has no parts")}
	}

	metadata, err := DecodeMetadata(raw[0].Header.Get("Content-Type"), raw[0].Data, fields)
	if err != nil {
		return nil, nil, err
	}

	parts := make([]Part, 0, len(raw)-1)
	for _, p := range raw[1:] {
		parts = append(parts, Part{ContentType: p.ContentType(), Data: p.Data})
	}
	return metadata, parts, nil
}

// ReadParts reads every part of a multipart body delimited by boundary.
// Quoted-printable and base64 transfer encodings are decoded.
func ReadParts(r io.Reader, boundary string) ([]RawPart, error) {
	mr := multipart.NewReader(r, boundary)
	var parts []RawPart
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, &ValueError{Format: "multipart", Err: err}
		}

		var src io.Reader = p
		if strings.EqualFold(strings.TrimSpace(p.Header.Get("Content-Transfer-Encoding")), "base64") {
			src = base64.NewDecoder(base64.StdEncoding, p)
		}
		data, err := io.ReadAll(src)
		_ = p.Close()
		if err != nil {
			return nil, &ValueError{Format: "multipart", Err: fmt.Errorf("part #%d: %w", len(parts), err)}
		}
		parts = append(parts, RawPart{Header: p.Header, Data: data})
	}
}

// DecodeMetadata decodes a metadata payload. JSON must be an object. XML is
// reduced to the named fields, each of which must be present.
func DecodeMetadata(contentType string, data []byte, fields []string) (map[string]any, error) {
	switch mt := mediaType(contentType); mt {
	case "application/json":
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &ValueError{Format: "JSON", Err: err}
		}
		if m == nil {
			return nil, &ValueError{Format: "JSON", Err: errors.New("metadata is not an object")}
		}
		return m, nil
	case "application/xml":
		return ExtractFields(data, fields)
	default:
		return nil, NewContentTypeError(contentType, -1,
			"unsupported Content-Type %q (only application/json and application/xml are supported)", mt)
	}
}

func mediaType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return "text/plain"
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(mt))
	}
	return mt
}
