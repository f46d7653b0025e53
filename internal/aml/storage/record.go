package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// recordVersion is bumped whenever the header schema changes shape.
const recordVersion = 1

// header is the fixed JSON line written before the payload of every
// .rec file, per spec §6. It carries only the flags needed to decode
// the payload — the encryption context itself is never stored here,
// it is re-derived by the caller from (projectId[, agent]).
type header struct {
	Version    int    `json:"version"`
	Compressed bool   `json:"compressed"`
	Encrypted  bool   `json:"encrypted"`
	Nonce      string `json:"nonce,omitempty"`
}

// writeRecord serializes header as one JSON line followed by the raw
// payload bytes.
func writeRecord(w io.Writer, h header, payload []byte) error {
	h.Version = recordVersion
	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal record header: %w", err)
	}
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("write record header: %w", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write record header newline: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write record payload: %w", err)
	}
	return nil
}

// readRecord parses the header line and returns it alongside the
// remaining payload bytes.
func readRecord(data []byte) (header, []byte, error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return header{}, nil, fmt.Errorf("record has no header line")
	}
	var h header
	if err := json.Unmarshal(data[:nl], &h); err != nil {
		return header{}, nil, fmt.Errorf("unmarshal record header: %w", err)
	}
	return h, data[nl+1:], nil
}
