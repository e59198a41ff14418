package cursor

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"restql/internal/cond"
)

// DefaultParam is the query parameter used when none is configured.
const DefaultParam = "paginationToken"

// Extractor pulls the next-page token out of a response. It returns false
// when the response carries no token.
type Extractor func(raw, extracted any, headers http.Header) (string, bool)

// Spec configures token pagination.
type Spec struct {
	// Param is the query parameter that carries the token on requests.
	Param string `mapstructure:"param"`

	// ResponsePath is a dotted path to the token in the response body.
	ResponsePath string `mapstructure:"response_path"`

	// ResponseHeader names a response header carrying the token.
	ResponseHeader string `mapstructure:"response_header"`

	// Extractor, when set, takes precedence over path and header lookups.
	Extractor Extractor `mapstructure:"-"`
}

// Enabled reports whether any token source is configured.
func (s *Spec) Enabled() bool {
	return s != nil && (s.Param != "" || s.ResponsePath != "" || s.ResponseHeader != "" || s.Extractor != nil)
}

// ParamName returns the configured request parameter or DefaultParam.
func (s *Spec) ParamName() string {
	if s == nil || s.Param == "" {
		return DefaultParam
	}
	return s.Param
}

// Fingerprint identifies a request independent of its pagination token:
// the base URL plus the sorted query string with param removed.
func Fingerprint(baseURL, rawQuery, param string) string {
	if rawQuery == "" {
		return baseURL
	}
	prefix := param + "="
	var parts []string
	for _, p := range strings.Split(rawQuery, "&") {
		if p == "" || strings.HasPrefix(p, prefix) {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return baseURL
	}
	sort.Strings(parts)
	return baseURL + "?" + strings.Join(parts, "&")
}

type response struct {
	raw       any
	extracted any
	headers   http.Header
}

// NextToken finds the continuation token in a response. Sources are tried
// in order: the extractor, the response header, then ResponsePath in the
// raw body and finally in the extracted body.
func (s *Spec) NextToken(raw, extracted any, headers http.Header) (string, bool) {
	if s == nil {
		return "", false
	}
	r := response{raw: raw, extracted: extracted, headers: headers}
	if s.Extractor != nil {
		return s.safeExtract(r)
	}
	token, ok := cond.New(
		cond.WhenThen(s.fromHeader, func(r response) string { return r.headers.Get(s.ResponseHeader) }),
		cond.WhenThen(s.fromRaw, func(r response) string { return tokenText(LookupPath(r.raw, s.ResponsePath)) }),
		cond.WhenThen(s.fromExtracted, func(r response) string { return tokenText(LookupPath(r.extracted, s.ResponsePath)) }),
	).Eval(r)
	return token, ok && token != ""
}

func (s *Spec) fromHeader(r response) bool {
	return s.ResponseHeader != "" && r.headers != nil && r.headers.Get(s.ResponseHeader) != ""
}

func (s *Spec) fromRaw(r response) bool {
	return s.ResponsePath != "" && LookupPath(r.raw, s.ResponsePath) != nil
}

func (s *Spec) fromExtracted(r response) bool {
	return s.ResponsePath != "" && LookupPath(r.extracted, s.ResponsePath) != nil
}

// safeExtract treats a panicking extractor as "no token".
func (s *Spec) safeExtract(r response) (token string, ok bool) {
	defer func() {
		if recover() != nil {
			token, ok = "", false
		}
	}()
	token, ok = s.Extractor(r.raw, r.extracted, r.headers)
	return token, ok && token != ""
}

// LookupPath walks a dotted path through nested objects. It returns nil
// when any segment is missing.
func LookupPath(v any, path string) any {
	if v == nil || path == "" {
		return nil
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		next, ok := m[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func tokenText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
