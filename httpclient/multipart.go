package httpclient

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

const defaultFileContentType = "application/octet-stream"

type formField struct {
	name  string
	value string
}

type formFile struct {
	name        string
	filename    string
	contentType string
	data        []byte

	// path is read when the form is encoded.
	path string
}

// Form is an ordered multipart/form-data body. Text fields are written
// first, then files, each group in the order it was added.
//
// Example:
//
//	form := httpclient.NewForm().
//	    Text("collection_id", "12").
//	    File("file", "orders.csv", csvBytes)
//
//	var out json.RawMessage
//	err := client.ExecuteMultipartJSON(ctx, httpclient.Call{
//	    Method:   http.MethodPost,
//	    Segments: []string{"api", "upload", "csv"},
//	}, form, &out)
//
// A Form is not safe for concurrent modification.
type Form struct {
	fields []formField
	files  []formFile
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{}
}

// Text adds a text field.
func (f *Form) Text(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// File adds an in-memory file sent as application/octet-stream.
func (f *Form) File(name, filename string, data []byte) *Form {
	return f.FileWithContentType(name, filename, "", data)
}

// FileWithContentType adds an in-memory file with an explicit content type.
// An empty contentType means application/octet-stream.
func (f *Form) FileWithContentType(name, filename, contentType string, data []byte) *Form {
	f.files = append(f.files, formFile{
		name:        name,
		filename:    filename,
		contentType: contentType,
		data:        data,
	})
	return f
}

// FilePath adds a file read from disk when the request is built. The part's
// filename is the base name of path.
func (f *Form) FilePath(name, path string) *Form {
	f.files = append(f.files, formFile{
		name:     name,
		filename: filepath.Base(path),
		path:     path,
	})
	return f
}

// Len returns the number of parts.
func (f *Form) Len() int {
	if f == nil {
		return 0
	}
	return len(f.fields) + len(f.files)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encode renders the form once; the executor replays the bytes per attempt.
func (f *Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if f != nil {
		for _, field := range f.fields {
			if err := w.WriteField(field.name, field.value); err != nil {
				return nil, "", newBuildError("failed to write multipart field "+field.name, err)
			}
		}

		for _, file := range f.files {
			data := file.data
			if file.path != "" {
				var err error
				data, err = os.ReadFile(file.path)
				if err != nil {
					return nil, "", newBuildError("failed to read multipart file "+file.path, err)
				}
			}

			contentType := file.contentType
			if contentType == "" {
				contentType = defaultFileContentType
			}

			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
				quoteEscaper.Replace(file.name), quoteEscaper.Replace(file.filename)))
			h.Set("Content-Type", contentType)

			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", newBuildError("failed to create multipart part "+file.name, err)
			}
			if _, err := part.Write(data); err != nil {
				return nil, "", newBuildError("failed to write multipart part "+file.name, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", newBuildError("failed to finish multipart body", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
