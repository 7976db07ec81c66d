package mmsbody

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// ExtractFields reads an XML document and returns the text of the first
// element named after each field. Names are matched on their local part so
// namespace prefixes are ignored. Text of nested elements is concatenated.
// Attributes are ignored and CDATA sections are read as text.
func ExtractFields(data []byte, fields []string) (map[string]any, error) {
	want := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		want[f] = struct{}{}
	}
	found := make(map[string]string, len(fields))

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		capturing string
		depth     int
		text      strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ValueError{Format: "XML", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if capturing != "" {
				depth++
				continue
			}
			name := t.Name.Local
			if _, ok := want[name]; !ok {
				continue
			}
			if _, done := found[name]; done {
				continue
			}
			capturing, depth = name, 0
			text.Reset()
		case xml.EndElement:
			if capturing == "" {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			found[capturing] = strings.TrimSpace(text.String())
			capturing = ""
		case xml.CharData:
			if capturing != "" {
				text.Write(t)
			}
		}
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := found[f]
		if !ok {
			return nil, &MissingFieldError{Field: f}
		}
		out[f] = v
	}
	return out, nil
}
