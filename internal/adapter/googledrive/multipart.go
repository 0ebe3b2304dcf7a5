package googledrive

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/google/uuid"
)

type uploadMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
}

// MultipartBody is a Drive multipart/related upload payload.
type MultipartBody struct {
	Boundary string
	Body     []byte
}

// ContentType is the request header value matching the body's delimiters.
func (m *MultipartBody) ContentType() string {
	return fmt.Sprintf("multipart/related; boundary=%q", m.Boundary)
}

// BuildMultipartBody encodes file metadata as the first part and the
// base64-encoded content as the second.
func BuildMultipartBody(name, mimeType, parentID string, content []byte) (*MultipartBody, error) {
	return buildMultipartBody("drivegate-"+uuid.NewString(), name, mimeType, parentID, content)
}

func buildMultipartBody(boundary, name, mimeType, parentID string, content []byte) (*MultipartBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("set boundary: %w", err)
	}

	meta := uploadMetadata{Name: name, MimeType: mimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	metaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("create metadata part: %w", err)
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	mediaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mimeType},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("create media part: %w", err)
	}
	if _, err := mediaPart.Write([]byte(base64.StdEncoding.EncodeToString(content))); err != nil {
		return nil, fmt.Errorf("write media part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	return &MultipartBody{Boundary: boundary, Body: buf.Bytes()}, nil
}
