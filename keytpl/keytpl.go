// Package keytpl compiles cache key templates such as
//
//	$scheme$host$1$is_args$args
//
// and evaluates them against HTTP requests.
//
// Supported variables: $scheme, $host, $request_uri, $uri, $args,
// $is_args, $request_method, $remote_addr, $arg_NAME, $http_NAME,
// $cookie_NAME and the location captures $0 to $9. Names may be
// enclosed in braces (${host}), "$$" yields a literal dollar sign.
package keytpl

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"strings"
)

var (
	// ErrUnavailable is returned by Eval when a referenced capture does
	// not exist.
	ErrUnavailable = errors.New("variable unavailable")

	// ErrEmpty is returned by Eval when the template evaluates to an
	// empty string.
	ErrEmpty = errors.New("key evaluates to empty string")
)

type value func(r *http.Request, captures []string) (string, error)

type part struct {
	lit string
	val value // nil for literals
}

// Template is a compiled key template. It is safe for concurrent use.
type Template struct {
	raw   string
	parts []part
}

func (t *Template) String() string { return t.raw }

// Compile parses s. Unknown variables are rejected.
func Compile(s string) (*Template, error) {
	t := &Template{raw: s}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' {
			lit.WriteByte(c)
			i++
			continue
		}

		name, n, err := scanName(s[i+1:])
		if err != nil {
			return nil, fmt.Errorf("keytpl: %w at offset %d in %q", err, i, s)
		}
		i += 1 + n
		if name == "$" {
			lit.WriteByte('$')
			continue
		}

		val, err := lookup(name)
		if err != nil {
			return nil, fmt.Errorf("keytpl: %w", err)
		}
		flush()
		t.parts = append(t.parts, part{val: val})
	}
	flush()
	return t, nil
}

// MustCompile is like Compile, but panics on error.
func MustCompile(s string) *Template {
	t, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return t
}

// scanName reads a variable name following a '$' and returns it together
// with the number of consumed bytes.
func scanName(s string) (string, int, error) {
	switch {
	case s == "":
		return "", 0, errors.New("dangling '$'")
	case s[0] == '$':
		return "$", 1, nil
	case s[0] == '{':
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return "", 0, errors.New("unterminated '${'")
		}
		if end == 1 {
			return "", 0, errors.New("empty variable name")
		}
		return s[1:end], end + 1, nil
	case isDigit(s[0]):
		return s[:1], 1, nil
	}

	n := 0
	for n < len(s) && isNameChar(s[n]) {
		n++
	}
	if n == 0 {
		return "", 0, fmt.Errorf("invalid variable name start %q", s[0])
	}
	return s[:n], n, nil
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isNameChar(c byte) bool {
	return c == '_' || isDigit(c) || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func static(f func(r *http.Request) string) value {
	return func(r *http.Request, _ []string) (string, error) {
		return f(r), nil
	}
}

var variables = map[string]value{
	"scheme": static(func(r *http.Request) string {
		if r.URL != nil && r.URL.Scheme != "" {
			return r.URL.Scheme
		}
		if r.TLS != nil {
			return "https"
		}
		return "http"
	}),
	"host": static(func(r *http.Request) string {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		return strings.ToLower(host)
	}),
	"request_uri": static(func(r *http.Request) string {
		if r.RequestURI != "" {
			return r.RequestURI
		}
		return r.URL.RequestURI()
	}),
	"uri":  static(func(r *http.Request) string { return r.URL.Path }),
	"args": static(func(r *http.Request) string { return r.URL.RawQuery }),
	"is_args": static(func(r *http.Request) string {
		if r.URL.RawQuery != "" {
			return "?"
		}
		return ""
	}),
	"request_method": static(func(r *http.Request) string { return r.Method }),
	"remote_addr": static(func(r *http.Request) string {
		if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return h
		}
		return r.RemoteAddr
	}),
}

func lookup(name string) (value, error) {
	if v, ok := variables[name]; ok {
		return v, nil
	}

	if len(name) == 1 && isDigit(name[0]) {
		idx := int(name[0] - '0')
		return func(_ *http.Request, captures []string) (string, error) {
			if idx >= len(captures) {
				return "", fmt.Errorf("%w: $%d", ErrUnavailable, idx)
			}
			return captures[idx], nil
		}, nil
	}

	switch prefix, arg, _ := strings.Cut(name, "_"); {
	case arg == "":
		// fallthrough to error
	case prefix == "arg":
		return static(func(r *http.Request) string {
			return r.URL.Query().Get(arg)
		}), nil
	case prefix == "http":
		header := textproto.CanonicalMIMEHeaderKey(strings.ReplaceAll(arg, "_", "-"))
		return static(func(r *http.Request) string {
			return strings.Join(r.Header.Values(header), ", ")
		}), nil
	case prefix == "cookie":
		return static(func(r *http.Request) string {
			if c, err := r.Cookie(arg); err == nil {
				return c.Value
			}
			return ""
		}), nil
	}
	return nil, fmt.Errorf("unknown variable %q", "$"+name)
}

// Eval renders t for r. captures[0] refers to $0, captures[1] to $1, and
// so on. Referencing a missing capture fails with ErrUnavailable, an empty
// result with ErrEmpty.
func (t *Template) Eval(r *http.Request, captures []string) (string, error) {
	var b strings.Builder
	for _, p := range t.parts {
		if p.val == nil {
			b.WriteString(p.lit)
			continue
		}
		s, err := p.val(r, captures)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	if b.Len() == 0 {
		return "", ErrEmpty
	}
	return b.String(), nil
}
