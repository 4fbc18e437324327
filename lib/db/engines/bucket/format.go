package bucket

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/codec"
	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/cespare/xxhash/v2"
)

// --------------------------------------------------------------------------
// Bucket File Format
// --------------------------------------------------------------------------
//
// All integers are big endian.
//
//	magic "FSKVBKT\x00" | version u8 | flags u8 | count u32 | payload | checksum u64
//
// payload = count * (keyLen u32 | key | valueLen u32 | value), zstd compressed
// if flagZstd is set. The checksum is the xxhash64 of every preceding byte.
// A file of length zero is a valid, empty bucket.

const (
	magicNum      = "FSKVBKT\x00" // File format identifier
	formatVersion = 1             // Bucket format version

	flagZstd  byte = 1 << 0
	flagsMask      = flagZstd

	headerLen   = len(magicNum) + 1 + 1 + 4
	checksumLen = 8
	recordMin   = 8 // two length prefixes
)

// payloadZstd compresses whole payloads with the shared zstd encoder
var payloadZstd = codec.NewZstdCodec(codec.NewBytesCodec())

// encodeBucket serializes records into a complete bucket file
func encodeBucket(records []db.Record, compress bool) ([]byte, error) {
	size := 0
	for _, r := range records {
		size += recordMin + len(r.Key) + len(r.Value)
	}

	payload := make([]byte, 0, size)
	for _, r := range records {
		payload = binary.BigEndian.AppendUint32(payload, uint32(len(r.Key)))
		payload = append(payload, r.Key...)
		payload = binary.BigEndian.AppendUint32(payload, uint32(len(r.Value)))
		payload = append(payload, r.Value...)
	}

	var flags byte
	if compress {
		compressed, err := payloadZstd.Encode(payload)
		if err != nil {
			return nil, err
		}
		payload = compressed
		flags |= flagZstd
	}

	buf := make([]byte, 0, headerLen+len(payload)+checksumLen)
	buf = append(buf, magicNum...)
	buf = append(buf, formatVersion, flags)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(records)))
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint64(buf, xxhash.Sum64(buf))
	return buf, nil
}

// decodeBucket parses a bucket file. The returned records reference freshly
// allocated memory that is not shared with data.
func decodeBucket(data []byte) ([]db.Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < headerLen+checksumLen {
		return nil, corrupt("truncated header (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(magicNum)], []byte(magicNum)) {
		return nil, corrupt("magic number mismatch")
	}

	body := data[:len(data)-checksumLen]
	if sum := binary.BigEndian.Uint64(data[len(body):]); sum != xxhash.Sum64(body) {
		return nil, corrupt("checksum mismatch")
	}

	version := data[len(magicNum)]
	if version != formatVersion {
		return nil, corrupt("unsupported version %d (expected %d)", version, formatVersion)
	}
	flags := data[len(magicNum)+1]
	if flags&^flagsMask != 0 {
		return nil, corrupt("unknown flags %#x", flags)
	}
	count := binary.BigEndian.Uint32(data[len(magicNum)+2:])

	var payload []byte
	if flags&flagZstd != 0 {
		p, err := payloadZstd.Decode(body[headerLen:])
		if err != nil {
			return nil, corrupt("%v", err)
		}
		payload = p
	} else {
		payload = make([]byte, len(body)-headerLen)
		copy(payload, body[headerLen:])
	}

	if uint64(count)*recordMin > uint64(len(payload)) {
		return nil, corrupt("record count %d exceeds payload", count)
	}

	records := make([]db.Record, 0, count)
	off := 0
	for i := uint32(0); i < count; i++ {
		key, next, err := readField(payload, off)
		if err != nil {
			return nil, err
		}
		value, next, err := readField(payload, next)
		if err != nil {
			return nil, err
		}
		records = append(records, db.Record{Key: key, Value: value})
		off = next
	}
	if off != len(payload) {
		return nil, corrupt("%d trailing bytes", len(payload)-off)
	}
	return records, nil
}

// readField reads one length prefixed field starting at off
func readField(payload []byte, off int) ([]byte, int, error) {
	if len(payload)-off < 4 {
		return nil, 0, corrupt("truncated length prefix at %d", off)
	}
	n := int(binary.BigEndian.Uint32(payload[off:]))
	off += 4
	if n > len(payload)-off {
		return nil, 0, corrupt("field of %d bytes at %d exceeds payload", n, off)
	}
	return payload[off : off+n : off+n], off + n, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", db.ErrCorrupt, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Record Helpers
// --------------------------------------------------------------------------

func findRecord(records []db.Record, key []byte) int {
	for i, r := range records {
		if bytes.Equal(r.Key, key) {
			return i
		}
	}
	return -1
}
