// Package attr implements the attribute codec: objects serialize to a
// sorted sequence of newline-terminated "key=value" lines. See spec.md
// §4.B for the full rule set this package is bound by.
package attr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrNewlineInValue is returned when a value to be written contains a
// newline; the format cannot represent that.
var ErrNewlineInValue = errors.New("attr: newline in value")

// Record accumulates key=value lines for one object and renders them
// sorted on demand. Zero value is ready to use.
type Record struct {
	lines []string
	err   error
}

// Set appends a line. Absent optional fields must never call Set at all
// (elision): the omission, not a sentinel value, is how "not present" is
// represented.
func (r *Record) Set(key, value string) {
	if r.err != nil {
		return
	}
	if strings.ContainsRune(value, '\n') || strings.ContainsRune(key, '\n') {
		r.err = fmt.Errorf("%w: key %q", ErrNewlineInValue, key)
		return
	}
	r.lines = append(r.lines, key+"="+value)
}

// SetInt appends a decimal signed integer field.
func (r *Record) SetInt(key string, v int32) {
	r.Set(key, strconv.FormatInt(int64(v), 10))
}

// SetOption appends key only if value is non-nil; elides the line
// otherwise, per the codec's elision rule.
func (r *Record) SetOption(key string, value *string) {
	if value == nil {
		return
	}
	r.Set(key, *value)
}

// Bytes sorts the accumulated lines lexicographically by full line bytes
// and concatenates them, each newline-terminated. Returns the first error
// encountered by a Set call, if any.
func (r *Record) Bytes() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	lines := append([]string(nil), r.lines...)
	sort.Strings(lines)
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

// Fields is the parsed, mutable view of a decoded record: known keys are
// consumed one at a time, and whatever remains is routed into open maps
// by the caller (dependency/output/input prefixes).
type Fields struct {
	m map[string]string
}

// Parse splits r into key=value lines. A line without '=' is a parse
// error; this is the only tolerant-decoding boundary the format has
// (unknown *keys* are fine, unknown *lines* are not).
func Parse(r io.Reader) (*Fields, error) {
	m := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("attr: malformed line without '=': %q", line)
		}
		m[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("attr: %w", err)
	}
	return &Fields{m: m}, nil
}

// Consume removes and returns a key's value.
func (f *Fields) Consume(key string) (string, bool) {
	v, ok := f.m[key]
	if ok {
		delete(f.m, key)
	}
	return v, ok
}

// MustConsume is Consume but returns an error naming the missing key.
func (f *Fields) MustConsume(key string) (string, error) {
	v, ok := f.Consume(key)
	if !ok {
		return "", fmt.Errorf("attr: missing key %q", key)
	}
	return v, nil
}

// Remaining returns whatever keys were not Consumed. Callers route these
// into open maps by prefix and must error on anything unrecognized.
func (f *Fields) Remaining() map[string]string {
	return f.m
}
