// Package ingest converts user-selected files into message attachments.
package ingest

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"

	"github.com/meetai-labs/meetai/backend/internal/logging"
	"github.com/meetai-labs/meetai/backend/internal/model/chat"
)

// File is one item of an ingestion batch.
type File struct {
	Name     string
	MimeType string
	Reader   io.Reader
}

// Encode reads a single file and base64-encodes its payload.
func Encode(f File) (chat.Attachment, error) {
	data, err := io.ReadAll(f.Reader)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}

	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(f.Name))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return chat.Attachment{
		Name:     f.Name,
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// EncodeAll converts a batch. One file's failure is logged and skipped; it
// never aborts ingestion of its siblings.
func EncodeAll(files []File) []chat.Attachment {
	attachments := make([]chat.Attachment, 0, len(files))
	for _, f := range files {
		att, err := Encode(f)
		if err != nil {
			logging.Warn().Err(err).Str("file", f.Name).Msg("attachment ingestion failed")
			continue
		}
		attachments = append(attachments, att)
	}
	return attachments
}

// FromMultipart ingests every file part named "files" in an upload form.
func FromMultipart(form *multipart.Form) []chat.Attachment {
	headers := form.File["files"]
	files := make([]File, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))

	for _, hdr := range headers {
		src, err := hdr.Open()
		if err != nil {
			logging.Warn().Err(err).Str("file", hdr.Filename).Msg("attachment open failed")
			continue
		}
		opened = append(opened, src)
		files = append(files, File{
			Name:     hdr.Filename,
			MimeType: hdr.Header.Get("Content-Type"),
			Reader:   src,
		})
	}

	attachments := EncodeAll(files)
	for _, src := range opened {
		src.Close()
	}
	return attachments
}
