// Package sse turns a server-sent-event byte stream into content deltas.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const (
	dataMarker = "data:"
	doneMarker = "[DONE]"

	maxLineSize = 1024 * 1024
)

type Format string

const (
	// FormatAuto decodes JSON chunk payloads and passes plain text through.
	// Any payload starting with "{" is taken for a chunk: when it does not
	// parse, or parses without a content field, it is dropped. Backends that
	// stream raw text such as code should use FormatText.
	FormatAuto = Format("auto")
	// FormatText passes every payload through verbatim.
	FormatText = Format("text")
)

func ParseFormat(s string) Format {
	if Format(s) == FormatText {
		return FormatText
	}
	return FormatAuto
}

// DecodeLine applies the per-line rule to a single line. ok is false when the
// line carries no delta.
func DecodeLine(line string) (delta string, ok bool) {
	if !strings.HasPrefix(line, dataMarker) {
		return "", false
	}
	payload := line[len(dataMarker):]
	if strings.TrimSpace(payload) == "" {
		return "\n", true
	}
	return strings.TrimPrefix(payload, " "), true
}

type chunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Content *string `json:"content"`
	Data    *string `json:"data"`
}

func (c chunk) text() (string, bool) {
	if len(c.Choices) > 0 && c.Choices[0].Delta.Content != nil {
		return *c.Choices[0].Delta.Content, true
	}
	if c.Content != nil {
		return *c.Content, true
	}
	if c.Data != nil {
		return *c.Data, true
	}
	return "", false
}

type Decoder struct {
	scanner *bufio.Scanner
	format  Format
	done    bool
}

func NewDecoder(r io.Reader, format Format) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{
		scanner: scanner,
		format:  format,
	}
}

// Next returns the next delta. It returns io.EOF once the line stream ends or
// the [DONE] sentinel arrives, and the reader's error if reading fails.
func (d *Decoder) Next() (string, error) {
	for !d.done && d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")
		delta, ok := DecodeLine(line)
		if !ok {
			continue
		}
		if d.format == FormatText {
			return delta, nil
		}
		if delta == doneMarker {
			d.done = true
			break
		}
		if !strings.HasPrefix(delta, "{") {
			return delta, nil
		}
		var c chunk
		if err := json.Unmarshal([]byte(delta), &c); err != nil {
			// malformed frames are dropped
			continue
		}
		if text, ok := c.text(); ok {
			return text, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// DecodeAll drains the decoder. It returns the deltas read so far together
// with the first error other than io.EOF.
func DecodeAll(d *Decoder) ([]string, error) {
	var deltas []string
	for {
		delta, err := d.Next()
		if err == io.EOF {
			return deltas, nil
		}
		if err != nil {
			return deltas, err
		}
		deltas = append(deltas, delta)
	}
}
