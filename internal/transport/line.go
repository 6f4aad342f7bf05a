package transport

import "bytes"

// lineBuffer accumulates raw chunks and hands out complete
// newline-terminated lines one at a time.
type lineBuffer struct {
	data []byte
}

func (b *lineBuffer) append(chunk []byte) {
	b.data = append(b.data, chunk...)
}

// next extracts the earliest complete line, stripped of the trailing
// newline and any carriage return. Empty lines are skipped. Returns nil
// when no complete line is buffered.
func (b *lineBuffer) next() []byte {
	for {
		idx := bytes.IndexByte(b.data, '\n')
		if idx < 0 {
			return nil
		}
		line := bytes.TrimSpace(b.data[:idx])
		rest := make([]byte, len(b.data)-idx-1)
		copy(rest, b.data[idx+1:])
		b.data = rest
		if len(line) == 0 {
			continue
		}

		return line
	}
}

// drain returns all buffered bytes, framed or not, and empties the
// buffer.
func (b *lineBuffer) drain() []byte {
	data := b.data
	b.data = nil

	return data
}

func (b *lineBuffer) reset() {
	b.data = nil
}
