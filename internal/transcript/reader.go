package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
)

const scannerBufferSize = 1024 * 1024

// ByteSource supplies raw log bytes for a path-like key. The core never
// touches a filesystem directly; a missing log must be reported with an error
// satisfying errors.Is(err, fs.ErrNotExist).
type ByteSource func(key string) ([]byte, error)

// ReadResult is the outcome of reading one log. A missing log yields an empty
// Entries list and no error; only a hard I/O failure sets Err.
type ReadResult struct {
	Entries      []RawEntry
	SkippedLines int
	Err          string
}

// ReadLog reads and parses the log identified by key. Each line is parsed
// independently; a malformed line increments SkippedLines and is otherwise
// ignored.
func ReadLog(source ByteSource, key string) ReadResult {
	data, err := source(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ReadResult{}
		}
		return ReadResult{Err: err.Error()}
	}
	return ParseLog(data)
}

// ParseLog parses raw JSONL transcript bytes.
func ParseLog(data []byte) ReadResult {
	var res ReadResult
	scanner := bufio.NewScanner(bytes.NewReader(data))
	buf := make([]byte, 0, scannerBufferSize)
	scanner.Buffer(buf, math.MaxInt)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry RawEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			res.SkippedLines++
			continue
		}
		if entry.Kind == "" {
			res.SkippedLines++
			continue
		}
		res.Entries = append(res.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		res.Err = err.Error()
	}
	return res
}
