package mmsbody

import (
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// Attachment is one MMS attachment. The set of implementations is closed:
// Text, Binary and File.
type Attachment interface {
	attachment()
}

// Text is an inline text attachment sent as text/plain in UTF-8.
type Text string

// Binary is a media attachment with an explicit content type.
type Binary struct {
	ContentType string
	Data        []byte
}

// File is a media attachment read from Reader. Its content type is inferred
// from Name.
type File struct {
	Name   string
	Reader io.Reader
}

func (Text) attachment()   {}
func (Binary) attachment() {}
func (File) attachment()   {}

// Part is an attachment read back from a multipart body.
type Part struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Handset media types the platform registry often lacks.
var extraTypes = map[string]string{
	".3gp":  "video/3gpp",
	".3g2":  "video/3gpp2",
	".amr":  "audio/amr",
	".bmp":  "image/bmp",
	".gif":  "image/gif",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".m4a":  "audio/mp4",
	".mid":  "audio/midi",
	".midi": "audio/midi",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".ogg":  "audio/ogg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".wav":  "audio/wav",
	".webp": "image/webp",
}

// TypeByName guesses a media type from a file name. It returns "" when the
// extension is unknown. Parameters such as charset are dropped.
func TypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}
