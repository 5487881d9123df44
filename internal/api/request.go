package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// errUnknownCodec is returned for a codec value this server cannot decode.
var errUnknownCodec = errors.New("unknown request codec")

// params reads widget request parameters. With codec 1 the widget sends
// every name and value base64 encoded; uploaded files are never encoded.
type params struct {
	values url.Values
	files  map[string][]*multipart.FileHeader
	codec  bool
}

func parseParams(w http.ResponseWriter, r *http.Request, maxUploadSize int64) (*params, error) {
	if maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	}

	p := &params{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, apperr.New(apperr.MalformedRequest, "parse request", "", err)
		}
		p.files = r.MultipartForm.File
	} else if err := r.ParseForm(); err != nil {
		return nil, apperr.New(apperr.MalformedRequest, "parse request", "", err)
	}
	p.values = r.Form

	switch codec := p.values.Get("codec"); codec {
	case "", "0":
	case "1":
		p.codec = true
	default:
		return nil, apperr.New(apperr.Unknown, "parse request", "", fmt.Errorf("%w: %q", errUnknownCodec, codec))
	}
	return p, nil
}

func (p *params) key(name string) string {
	if p.codec {
		return base64.StdEncoding.EncodeToString([]byte(name))
	}
	return name
}

func (p *params) decode(v string) string {
	if !p.codec {
		return v
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// lookup returns the first value of a parameter and whether it was sent.
func (p *params) lookup(name string) (string, bool) {
	vs, ok := p.values[p.key(name)]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return p.decode(vs[0]), true
}

func (p *params) str(name, def string) string {
	if v, ok := p.lookup(name); ok {
		return v
	}
	return def
}

// number returns the parameter as an integer. Values that are not integers
// count as not sent.
func (p *params) number(name string) (int, bool) {
	v, ok := p.lookup(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *params) numberOr(name string, def int) int {
	if n, ok := p.number(name); ok {
		return n
	}
	return def
}

// array collects a multi-valued parameter, accepting both "name" and the
// PHP-style "name[]".
func (p *params) array(name string) []string {
	var out []string
	for _, k := range []string{p.key(name), p.key(name) + "[]"} {
		for _, v := range p.values[k] {
			out = append(out, p.decode(v))
		}
	}
	return out
}

// list splits a "|" separated parameter. An empty or missing value is nil.
func (p *params) list(name string) []string {
	v := p.str(name, "")
	if v == "" {
		return nil
	}
	return strings.Split(v, "|")
}

func (p *params) file(name string) *multipart.FileHeader {
	if fhs := p.files[name]; len(fhs) > 0 {
		return fhs[0]
	}
	return nil
}
