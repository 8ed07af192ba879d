package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType resolves the MIME type for a stored object: an
// explicitly provided type wins, then the key's extension, then sniffing
// the first 512 bytes, then application/octet-stream.
func DetectContentType(providedType, key string, data io.Reader) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(key))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if data != nil {
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

// AllowedArtworkTypes are the image formats generation backends may hand
// us for design artwork. Anything else is treated as a backend fault.
var AllowedArtworkTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
}

// IsAllowedArtworkType reports whether a content type is acceptable design
// artwork. Parameters like charset are stripped before the lookup.
func IsAllowedArtworkType(contentType string) bool {
	return AllowedArtworkTypes[baseContentType(contentType)]
}

func baseContentType(contentType string) string {
	base := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(base))
}
