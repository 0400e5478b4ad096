package codex

import "bytes"

// LineFramer turns arbitrary byte chunks into complete newline-terminated
// lines. A trailing partial line is held until a later chunk completes it.
// It is not safe for concurrent use.
type LineFramer struct {
	buf []byte
}

// Feed appends chunk and returns every line it completed, in order, without
// the line terminator. A "\r\n" terminator is treated like "\n".
func (f *LineFramer) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(f.buf[:i], []byte{'\r'})))
		f.buf = f.buf[i+1:]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// Flush returns the buffered partial line, if any, and resets the framer.
func (f *LineFramer) Flush() (string, bool) {
	if len(f.buf) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(f.buf, []byte{'\r'}))
	f.buf = nil
	return line, true
}

// Pending reports how many bytes are waiting for a newline.
func (f *LineFramer) Pending() int {
	return len(f.buf)
}
