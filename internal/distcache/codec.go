package distcache

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/klauspost/compress/gzip"
)

// Format selects the wire serialization distcache uses before the
// gzip compression pass. msgpack is intentionally absent: no msgpack
// library appears anywhere in the example pack's dependency set, so
// only the two stdlib-backed formats are offered (documented in
// DESIGN.md).
type Format string

const (
	FormatJSON   Format = "json"
	FormatBinary Format = "binary"
)

// gzipThreshold matches spec.md §4.11: "gzip-compressed if >1 KB".
const gzipThreshold = 1024

// gzipMagic is the two-byte gzip header distcache sniffs for on read
// instead of storing an explicit compressed flag, per spec.md §4.11's
// "magic-byte sniff on read".
var gzipMagic = [2]byte{0x1f, 0x8b}

func marshal(format Format, value any) ([]byte, *CacheError) {
	var raw []byte
	var err error

	switch format {
	case FormatBinary:
		var buf bytes.Buffer
		err = gob.NewEncoder(&buf).Encode(value)
		raw = buf.Bytes()
	default:
		raw, err = json.Marshal(value)
	}
	if err != nil {
		return nil, &CacheError{Message: err.Error(), Cause: ErrCauseSerialization}
	}

	if len(raw) <= gzipThreshold {
		return raw, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, &CacheError{Message: err.Error(), Cause: ErrCauseSerialization}
	}
	if err := gz.Close(); err != nil {
		return nil, &CacheError{Message: err.Error(), Cause: ErrCauseSerialization}
	}
	return buf.Bytes(), nil
}

func unmarshal(format Format, stored []byte, out any) *CacheError {
	raw := stored
	if len(stored) >= 2 && stored[0] == gzipMagic[0] && stored[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(bytes.NewReader(stored))
		if err != nil {
			return &CacheError{Message: err.Error(), Cause: ErrCauseSerialization}
		}
		defer gz.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(gz); err != nil {
			return &CacheError{Message: err.Error(), Cause: ErrCauseSerialization}
		}
		raw = buf.Bytes()
	}

	var err error
	switch format {
	case FormatBinary:
		err = gob.NewDecoder(bytes.NewReader(raw)).Decode(out)
	default:
		err = json.Unmarshal(raw, out)
	}
	if err != nil {
		return &CacheError{Message: err.Error(), Cause: ErrCauseSerialization}
	}
	return nil
}
