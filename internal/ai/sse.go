package ai

import (
	"bufio"
	"io"
	"strings"
)

// scanSSE calls fn for each server-sent event with its event name and data
// payload. fn returns false to stop reading.
func scanSSE(r io.Reader, fn func(event, data string) (bool, error)) error {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	var event string
	var data []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			if len(data) > 0 {
				more, err := fn(event, strings.Join(data, "\n"))
				if err != nil || !more {
					return err
				}
			}
			event, data = "", data[:0]
			continue
		}
		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(data) > 0 {
		_, err := fn(event, strings.Join(data, "\n"))
		return err
	}
	return nil
}

func errorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4*1024))
	return strings.TrimSpace(string(body))
}
