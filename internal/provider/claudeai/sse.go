package claudeai

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/xerrors"
)

// maxSSELine bounds a single SSE line; long completions exceed bufio's default.
const maxSSELine = 1 << 20

type sseScanner struct {
	scanner *bufio.Scanner
}

func newSSEScanner(r io.Reader) *sseScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &sseScanner{scanner: s}
}

// Next returns the data payload of the next event, joining multi-line data
// fields with newlines. It returns io.EOF when the body is exhausted.
func (s *sseScanner) Next() (string, error) {
	var data []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(v))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", xerrors.Errorf("read event stream: %w", err)
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}
