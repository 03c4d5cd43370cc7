package wal

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
	}{
		{"insert", &Entry{Tag: TagInsert, Key: []byte("a"), Value: []byte("b")}},
		{"insert empty value", &Entry{Tag: TagInsert, Key: []byte("a"), Value: []byte{}}},
		{"remove", &Entry{Tag: TagRemove, Key: []byte("a")}},
		{"binary", &Entry{Tag: TagInsert, Key: []byte{0, 1, 2, 3}, Value: []byte{9, 8, 7}}},
		{"large", &Entry{Tag: TagInsert, Key: bytes.Repeat([]byte("k"), 1024), Value: bytes.Repeat([]byte("v"), 2048)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tt.entry); err != nil {
				t.Fatalf("Encode: %v", err)
			}

			got, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if got.Tag != tt.entry.Tag || !bytes.Equal(got.Key, tt.entry.Key) {
				t.Fatalf("mismatch: got %+v want %+v", got, tt.entry)
			}
			if tt.entry.Tag == TagInsert && !bytes.Equal(got.Value, tt.entry.Value) {
				t.Fatalf("value mismatch: got %v want %v", got.Value, tt.entry.Value)
			}
		})
	}
}

func TestDecodeDetectsChecksumCorruption(t *testing.T) {
	var buf bytes.Buffer
	e := &Entry{Tag: TagInsert, Key: []byte("key"), Value: []byte("value")}
	if err := Encode(&buf, e); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // flip a byte inside the value payload

	_, err := Decode(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected checksum error")
	}

	var corrupt *CorruptionError
	if !asCorruptionError(err, &corrupt) {
		t.Fatalf("expected *CorruptionError, got %T: %v", err, err)
	}
}

func TestDecodeRejectsInvalidTag(t *testing.T) {
	raw := []byte{0xFF, 0, 0, 0, 0, 0, 0, 0, 0}
	_, err := Decode(bytes.NewReader(raw))

	var corrupt *CorruptionError
	if !asCorruptionError(err, &corrupt) {
		t.Fatalf("expected *CorruptionError for invalid tag, got %T: %v", err, err)
	}
}

func asCorruptionError(err error, target **CorruptionError) bool {
	ce, ok := err.(*CorruptionError)
	if ok {
		*target = ce
	}
	return ok
}
