package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pavelanni/examvault/internal/keys"
)

func newKey(t *testing.T) keys.Key {
	t.Helper()
	k, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := newKey(t)
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hello")},
		{"exact block", bytes.Repeat([]byte("a"), 16)},
		{"multi block", bytes.Repeat([]byte("question set "), 100)},
		{"json", []byte(`{"questions":[{"question":"2+2?","options":["1","2","3","4"],"correctAnswer":4}]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Seal(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			got, err := Open(env, key)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("expected %q, got %q", tt.plaintext, got)
			}
		})
	}
}

func TestSealFreshIV(t *testing.T) {
	key := newKey(t)
	plaintext := []byte("same plaintext, same key")

	a, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a.IV, b.IV) {
		t.Error("two seals share an IV")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Error("two seals produced identical ciphertext")
	}
}

func TestOpenWrongKey(t *testing.T) {
	key := newKey(t)
	other := newKey(t)

	env, err := Seal([]byte("secret answers"), key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	_, err = Open(env, other)
	if !IsKeyMismatch(err) {
		t.Fatalf("expected key mismatch, got %v", err)
	}
}

func TestOpenWrongKeyWithoutFingerprint(t *testing.T) {
	key := newKey(t)
	plaintext := []byte(`{"questions":[]}`)

	for i := 0; i < 200; i++ {
		env, err := Seal(plaintext, key)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		env.KeyID = ""
		other := newKey(t)

		got, err := Open(env, other)
		if err == nil && bytes.Equal(got, plaintext) {
			t.Fatal("wrong key yielded the original plaintext")
		}
		if err != nil && !IsKeyMismatch(err) {
			t.Fatalf("expected key mismatch, got %v", err)
		}

		var v struct {
			Questions []json.RawMessage `json:"questions"`
		}
		if err := OpenJSON(env, other, &v); !IsKeyMismatch(err) {
			t.Fatalf("OpenJSON: expected key mismatch, got %v", err)
		}
	}
}

func TestOpenMalformed(t *testing.T) {
	key := newKey(t)
	good, err := Seal([]byte("payload"), key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tests := []struct {
		name string
		env  *Envelope
	}{
		{"nil", nil},
		{"short iv", &Envelope{IV: good.IV[:8], Ciphertext: good.Ciphertext}},
		{"empty ciphertext", &Envelope{IV: good.IV}},
		{"ragged ciphertext", &Envelope{IV: good.IV, Ciphertext: good.Ciphertext[:len(good.Ciphertext)-1]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.env, key)
			if !IsMalformed(err) {
				t.Errorf("expected malformed envelope, got %v", err)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	key := newKey(t)
	env, err := Seal([]byte("payload"), key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := Open(parsed, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("expected 'payload', got %q", got)
	}
	if parsed.KeyID != key.Fingerprint() {
		t.Errorf("expected key id %q, got %q", key.Fingerprint(), parsed.KeyID)
	}
}

func TestParseMalformed(t *testing.T) {
	iv := base64.StdEncoding.EncodeToString(make([]byte, IVSize))
	ct := base64.StdEncoding.EncodeToString(make([]byte, 32))

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "ivhex:ciphertext"},
		{"json array", `[1,2,3]`},
		{"missing iv", `{"ciphertext":"` + ct + `"}`},
		{"missing ciphertext", `{"iv":"` + iv + `"}`},
		{"bad iv base64", `{"iv":"***","ciphertext":"` + ct + `"}`},
		{"bad ciphertext base64", `{"iv":"` + iv + `","ciphertext":"***"}`},
		{"iv wrong length", `{"iv":"` + base64.StdEncoding.EncodeToString([]byte("short")) + `","ciphertext":"` + ct + `"}`},
		{"ciphertext not block aligned", `{"iv":"` + iv + `","ciphertext":"` + base64.StdEncoding.EncodeToString(make([]byte, 17)) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if !IsMalformed(err) {
				t.Errorf("expected malformed envelope, got %v", err)
			}
		})
	}
}

func TestOpenJSONRejectsNonJSON(t *testing.T) {
	key := newKey(t)
	env, err := Seal([]byte("not json at all"), key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	var v map[string]any
	err = OpenJSON(env, key, &v)
	if !IsKeyMismatch(err) {
		t.Fatalf("expected key mismatch, got %v", err)
	}
}

func TestDecryptionErrorKind(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name    string
		err     error
		kind    ErrorKind
		wrapped bool
	}{
		{"malformed", NewMalformedError("bad"), KindMalformed, false},
		{"malformed wrapped", WrapMalformedError(cause, "bad"), KindMalformed, true},
		{"mismatch", NewKeyMismatchError("bad"), KindKeyMismatch, false},
		{"mismatch wrapped", WrapKeyMismatchError(cause, "bad"), KindKeyMismatch, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var de *DecryptionError
			if !errors.As(tt.err, &de) {
				t.Fatalf("expected *DecryptionError, got %T", tt.err)
			}
			if de.Kind() != tt.kind {
				t.Errorf("expected kind %q, got %q", tt.kind, de.Kind())
			}
			if errors.Is(tt.err, cause) != tt.wrapped {
				t.Errorf("errors.Is(cause) = %v, want %v", !tt.wrapped, tt.wrapped)
			}
			if tt.wrapped && !strings.Contains(tt.err.Error(), "boom") {
				t.Errorf("expected wrapped message in %q", tt.err.Error())
			}
		})
	}
}

type fixedReader struct{ b byte }

func (r fixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	return len(p), nil
}

func TestSealUsesRandomSource(t *testing.T) {
	orig := randReader
	randReader = fixedReader{b: 0x42}
	t.Cleanup(func() { randReader = orig })

	env, err := Seal([]byte("x"), newKey(t))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !bytes.Equal(env.IV, bytes.Repeat([]byte{0x42}, IVSize)) {
		t.Errorf("expected IV from random source, got %x", env.IV)
	}
}
