// Package media validates evidence images and stores them in the external
// object store.
package media

import (
	"net/http"
	"path/filepath"
	"strings"

	dErrors "freewalk/pkg/domain-errors"
)

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

// allowedContentTypes maps accepted declared types onto their canonical form.
var allowedContentTypes = map[string]string{
	ContentTypeJPEG: ContentTypeJPEG,
	"image/jpg":     ContentTypeJPEG,
	ContentTypePNG:  ContentTypePNG,
}

// SniffLen is how many leading bytes DetectContentType looks at.
const SniffLen = 512

// DetectContentType returns the canonical image type of an upload. An
// accepted declared type is trusted; anything else is sniffed from head.
func DetectContentType(declared string, head []byte) (string, error) {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if canonical, ok := allowedContentTypes[declared]; ok {
		return canonical, nil
	}
	if len(head) > SniffLen {
		head = head[:SniffLen]
	}
	if canonical, ok := allowedContentTypes[http.DetectContentType(head)]; ok {
		return canonical, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "invalid file type, only JPEG and PNG images are allowed")
}

// Extension picks the object key suffix: the client's own extension when it
// has one, otherwise one derived from contentType.
func Extension(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && len(ext) <= 8 && !strings.ContainsAny(ext, `/\ `) {
		return ext
	}
	switch contentType {
	case ContentTypeJPEG:
		return ".jpg"
	case ContentTypePNG:
		return ".png"
	}
	return ""
}
