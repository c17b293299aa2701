package scan

import (
	"path/filepath"
	"strings"
)

const defaultMIME = "application/octet-stream"

var mimeByExt = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
	".gif": "image/gif", ".bmp": "image/bmp", ".webp": "image/webp",
	".heic": "image/heic", ".heif": "image/heif", ".tiff": "image/tiff",

	".mp4": "video/mp4", ".mov": "video/quicktime", ".avi": "video/x-msvideo",
	".mkv": "video/x-matroska", ".webm": "video/webm", ".m4v": "video/mp4",

	".mp3": "audio/mpeg", ".wav": "audio/wav", ".m4a": "audio/mp4",
	".aac": "audio/aac", ".flac": "audio/flac",

	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".rtf":  "application/rtf",
}

// MIMEType maps a filename to a MIME type using a fixed extension table.
// Unknown extensions map to application/octet-stream.
func MIMEType(filename string) string {
	if t, ok := mimeByExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	return defaultMIME
}
