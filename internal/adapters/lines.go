package adapters

import (
	"encoding/json"
	"strings"
)

// lineBuffer accumulates raw stream bytes and emits complete lines. A line
// is any run of bytes terminated by \n; a trailing \r is stripped so \r\n
// terminators work too. Flush emits the trailing unterminated fragment at
// stream close.
type lineBuffer struct {
	buf  []byte
	emit func(string)
}

func newLineBuffer(emit func(string)) *lineBuffer {
	return &lineBuffer{emit: emit}
}

// Write implements io.Writer so the buffer can sit behind io.Copy.
func (b *lineBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	for {
		i := indexByte(b.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := b.buf[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		b.emit(string(line))
		b.buf = b.buf[i+1:]
	}
}

// Flush emits any trailing partial line.
func (b *lineBuffer) Flush() {
	if len(b.buf) == 0 {
		return
	}
	line := b.buf
	if line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	b.emit(string(line))
	b.buf = nil
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}

// looksLikeJSONObject is the cheap heuristic deciding whether a stdout
// line is worth a parse attempt.
func looksLikeJSONObject(line string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= 2 && t[0] == '{' && t[len(t)-1] == '}'
}

// parseObject attempts to decode line as a JSON object.
func parseObject(line string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return nil, false
	}
	return m, true
}

// getString returns m[key] when it is a string.
func getString(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// getObject returns m[key] when it is a JSON object.
func getObject(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key].(map[string]any)
	return v, ok
}

// getArray returns m[key] when it is a JSON array.
func getArray(m map[string]any, key string) ([]any, bool) {
	v, ok := m[key].([]any)
	return v, ok
}

// textAccumulator appends chunks in document order while dropping a chunk
// identical to the one appended immediately before. Some tools emit both
// incremental deltas and a final consolidated copy of the same text.
type textAccumulator struct {
	parts []string
	last  string
}

func (a *textAccumulator) add(chunk string) {
	if chunk == "" || chunk == a.last {
		return
	}
	a.parts = append(a.parts, chunk)
	a.last = chunk
}

func (a *textAccumulator) String() string {
	return strings.Join(a.parts, "")
}

func (a *textAccumulator) empty() bool {
	return len(a.parts) == 0
}
