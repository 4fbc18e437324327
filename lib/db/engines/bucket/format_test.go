package bucket

import (
	"bytes"
	"errors"
	"github.com/ValentinKolb/fsKV/lib/db"
	"testing"
)

func testRecords() []db.Record {
	return []db.Record{
		{Key: []byte("alpha"), Value: []byte("1")},
		{Key: []byte(""), Value: []byte("empty key")},
		{Key: []byte("empty value"), Value: []byte{}},
		{Key: []byte("large"), Value: bytes.Repeat([]byte("abc"), 10000)},
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, compress := range []bool{false, true} {
		data, err := encodeBucket(testRecords(), compress)
		if err != nil {
			t.Fatalf("Failed to encode (compress=%v): %v", compress, err)
		}

		records, err := decodeBucket(data)
		if err != nil {
			t.Fatalf("Failed to decode (compress=%v): %v", compress, err)
		}

		want := testRecords()
		if len(records) != len(want) {
			t.Fatalf("Expected %d records, got %d", len(want), len(records))
		}
		for i := range want {
			if !bytes.Equal(records[i].Key, want[i].Key) || !bytes.Equal(records[i].Value, want[i].Value) {
				t.Errorf("Record %d mismatch (compress=%v)", i, compress)
			}
		}
	}
}

func TestCompressionShrinksRepetitiveBuckets(t *testing.T) {
	plain, _ := encodeBucket(testRecords(), false)
	compressed, _ := encodeBucket(testRecords(), true)
	if len(compressed) >= len(plain) {
		t.Errorf("Expected compressed bucket (%d bytes) to be smaller than plain (%d bytes)", len(compressed), len(plain))
	}
}

func TestDecodeEmpty(t *testing.T) {
	records, err := decodeBucket(nil)
	if err != nil || len(records) != 0 {
		t.Errorf("Expected empty bucket for empty file, got %v, %v", records, err)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	valid, err := encodeBucket(testRecords()[:1], false)
	if err != nil {
		t.Fatal(err)
	}

	flip := func(i int) []byte {
		d := append([]byte(nil), valid...)
		d[i] ^= 0xff
		return d
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"Truncated header", valid[:5]},
		{"Truncated payload", valid[:len(valid)-3]},
		{"Bad magic", flip(0)},
		{"Bad version", flip(len(magicNum))},
		{"Flipped payload byte", flip(headerLen + 2)},
		{"Bad checksum", flip(len(valid) - 1)},
		{"Garbage", []byte("this is not a bucket file at all")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeBucket(tc.data)
			if !errors.Is(err, db.ErrCorrupt) {
				t.Errorf("Expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestFindRecord(t *testing.T) {
	records := testRecords()
	if i := findRecord(records, []byte("large")); i != 3 {
		t.Errorf("Expected index 3, got %d", i)
	}
	if i := findRecord(records, []byte("missing")); i != -1 {
		t.Errorf("Expected -1 for missing key, got %d", i)
	}
}
