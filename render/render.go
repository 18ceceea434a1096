// Package render writes purge results to HTTP clients.
package render

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/digineo/purged"
	"github.com/digineo/purged/purge"
)

// Type selects the response format.
type Type uint8

const (
	HTML Type = iota
	JSON
	XML
	Text
)

const (
	mimeTypeJSON  = "application/json; charset=utf-8"
	mimeTypeXML   = "text/xml; charset=utf-8"
	mimeTypePlain = "text/plain; charset=utf-8"
	mimeTypeHTML  = "text/html; charset=utf-8"
)

// ParseType maps a configuration value to a Type. The empty string
// selects HTML.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "html":
		return HTML, nil
	case "json":
		return JSON, nil
	case "xml":
		return XML, nil
	case "text":
		return Text, nil
	}
	return HTML, fmt.Errorf("unknown response type %q, acceptable values are: [html, json, xml, text]", s)
}

func (t Type) String() string {
	switch t {
	case JSON:
		return "json"
	case XML:
		return "xml"
	case Text:
		return "text"
	default:
		return "html"
	}
}

func (t Type) contentType() string {
	switch t {
	case JSON:
		return mimeTypeJSON
	case XML:
		return mimeTypeXML
	case Text:
		return mimeTypePlain
	default:
		return mimeTypeHTML
	}
}

// StatusCode maps an outcome to an HTTP status.
func StatusCode(o purge.Outcome) int {
	switch o {
	case purge.Purged:
		return http.StatusOK
	case purge.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// page is the rendered view of a result.
type page struct {
	XMLName xml.Name `json:"-" xml:"purge"`
	Status  string   `json:"status" xml:"status,attr"`
	Mode    string   `json:"mode,omitempty" xml:"mode,attr,omitempty"`
	Key     string   `json:"key,omitempty" xml:"key,omitempty"`
	Path    string   `json:"path,omitempty" xml:"path,omitempty"`
	Removed *int     `json:"removed,omitempty" xml:"removed,omitempty"`
	Skipped *int     `json:"skipped,omitempty" xml:"skipped,omitempty"`
	Failed  *int     `json:"failed,omitempty" xml:"failed,omitempty"`
	Error   string   `json:"error,omitempty" xml:"error,omitempty"`
	Server  string   `json:"-" xml:"-"`
}

func newPage(res purge.Result) *page {
	p := &page{Status: res.Outcome.String(), Server: "purged " + purged.Version()}
	switch res.Outcome {
	case purge.Purged:
		p.Mode = res.Mode.String()
		p.Key = res.Key
		p.Path = res.Path
		if res.Mode != purge.Exact {
			p.Removed, p.Skipped, p.Failed = &res.Removed, &res.Skipped, &res.Failed
		}
	case purge.NotFound:
		p.Key = res.Key
	default:
		p.Error = "internal server error" // details are logged, not shown
	}
	return p
}

var htmlPage = template.Must(template.New("page").Parse(`<html>
<head><title>{{ .Title }}</title></head>
<body bgcolor="white">
<center><h1>{{ .Title }}</h1>
{{- with .Page }}{{ if .Key }}
<br>Key : {{ .Key }}{{ end }}{{ if .Path }}
<br>Path: {{ .Path }}{{ end }}{{ if .Removed }}
<br>Files removed: {{ .Removed }}, skipped: {{ .Skipped }}, failed: {{ .Failed }}{{ end }}{{ end }}
</center>
<hr><center>{{ .Page.Server }}</center>
</body>
</html>
`))

func title(o purge.Outcome) string {
	switch o {
	case purge.Purged:
		return "Successful purge"
	case purge.NotFound:
		return "404 Not Found"
	default:
		return "500 Internal Server Error"
	}
}

func (t Type) encode(res purge.Result) ([]byte, error) {
	p := newPage(res)
	var buf bytes.Buffer

	switch t {
	case JSON:
		if err := json.NewEncoder(&buf).Encode(p); err != nil {
			return nil, err
		}
	case XML:
		buf.WriteString(xml.Header)
		if err := xml.NewEncoder(&buf).Encode(p); err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
	case Text:
		fmt.Fprintf(&buf, "%s\n", title(res.Outcome))
		if p.Key != "" {
			fmt.Fprintf(&buf, "Key: %s\n", p.Key)
		}
		if p.Path != "" {
			fmt.Fprintf(&buf, "Path: %s\n", p.Path)
		}
		if p.Removed != nil {
			fmt.Fprintf(&buf, "Removed: %d\nSkipped: %d\nFailed: %d\n", *p.Removed, *p.Skipped, *p.Failed)
		}
	default:
		err := htmlPage.Execute(&buf, struct {
			Title string
			Page  *page
		}{title(res.Outcome), p})
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Write renders res in format t. HEAD requests only receive headers.
func Write(w http.ResponseWriter, r *http.Request, t Type, res purge.Result) error {
	body, err := t.encode(res)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return err
	}

	h := w.Header()
	h.Set("Content-Type", t.contentType())
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(StatusCode(res.Outcome))

	if r.Method == http.MethodHead {
		return nil
	}
	_, err = w.Write(body)
	return err
}
