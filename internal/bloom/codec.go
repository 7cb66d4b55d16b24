package bloom

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

/*
Wire format

A persisted snapshot is a 4-byte big-endian header length, the JSON
header, then the bit array as little-endian uint64 words. Kept
deliberately simple (no framing library in the example pack covers
this) rather than gob, so the header stays human-inspectable.
*/

func encodeSnapshot(header persistedHeader, bits []uint64) ([]byte, error) {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return nil, fmt.Errorf("write header length: %w", err)
	}
	buf.Write(headerJSON)

	for _, word := range bits {
		if err := binary.Write(&buf, binary.LittleEndian, word); err != nil {
			return nil, fmt.Errorf("write bit word: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(buf []byte) (persistedHeader, []uint64, error) {
	var header persistedHeader
	if len(buf) < 4 {
		return header, nil, fmt.Errorf("snapshot truncated: missing header length")
	}

	headerLen := binary.BigEndian.Uint32(buf[:4])
	rest := buf[4:]
	if uint32(len(rest)) < headerLen {
		return header, nil, fmt.Errorf("snapshot truncated: header")
	}

	if err := json.Unmarshal(rest[:headerLen], &header); err != nil {
		return header, nil, fmt.Errorf("decode header: %w", err)
	}

	body := rest[headerLen:]
	if len(body) != header.Words*8 {
		return header, nil, fmt.Errorf("snapshot corrupt: expected %d bit-array bytes, got %d", header.Words*8, len(body))
	}

	bits := make([]uint64, header.Words)
	r := bytes.NewReader(body)
	for i := 0; i < header.Words; i++ {
		if err := binary.Read(r, binary.LittleEndian, &bits[i]); err != nil {
			return header, nil, fmt.Errorf("read bit word %d: %w", i, err)
		}
	}
	return header, bits, nil
}
