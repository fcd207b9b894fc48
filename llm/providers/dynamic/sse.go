package dynamic

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/lgc202/ai-kit/manifest"
)

// framer delivers one wire frame at a time. For SSE a frame is one event's
// data payload; for jsonl it is one line.
type framer interface {
	Next() ([]byte, error)
}

func newFramer(r io.Reader, d *manifest.Decoder) framer {
	if d != nil && d.Format == "jsonl" {
		return &jsonlFramer{r: bufio.NewReaderSize(r, 64*1024)}
	}
	prefix := "data:"
	if d != nil && d.Prefix != "" {
		// A trailing space in the configured prefix is framing noise; the
		// decoder already skips one space after the colon.
		prefix = strings.TrimRight(d.Prefix, " ")
	}
	return &sseFramer{r: bufio.NewReaderSize(r, 64*1024), prefix: []byte(prefix)}
}

type sseFramer struct {
	r      *bufio.Reader
	prefix []byte
}

// Next returns the next SSE event's concatenated data payload.
//
// It concatenates multiple data lines with `\n`, per the SSE spec.
func (d *sseFramer) Next() ([]byte, error) {
	var dataLines [][]byte
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			// If we accumulated data before EOF, return it.
			if len(line) > 0 {
				line = bytes.TrimRight(line, "\r\n")
				if len(line) > 0 {
					dataLines = d.appendDataLine(dataLines, line)
				}
			}
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) == 0 {
				continue
			}
			return bytes.Join(dataLines, []byte("\n")), nil
		}

		// Comment line.
		if line[0] == ':' {
			continue
		}
		dataLines = d.appendDataLine(dataLines, line)
	}
}

func (d *sseFramer) appendDataLine(dst [][]byte, line []byte) [][]byte {
	if !bytes.HasPrefix(line, d.prefix) {
		return dst
	}
	val := line[len(d.prefix):]
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return append(dst, append([]byte(nil), val...))
}

type jsonlFramer struct {
	r *bufio.Reader
}

func (d *jsonlFramer) Next() ([]byte, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if err != nil {
			if len(line) > 0 {
				return line, nil
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}
