package random_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/random"
)

func TestReal_Bytes(t *testing.T) {
	r := random.Real{}

	b1, err := r.Bytes(16)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	b2, _ := r.Bytes(16)

	if len(b1) != 16 {
		t.Errorf("expected 16 bytes, got %d", len(b1))
	}
	if bytes.Equal(b1, b2) {
		t.Error("random bytes should differ")
	}
}

func TestReal_String(t *testing.T) {
	s, err := random.Real{}.String(17)
	if err != nil {
		t.Fatalf("String failed: %v", err)
	}
	if len(s) != 17 {
		t.Errorf("expected 17 chars, got %d", len(s))
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("non-hex character: %c", c)
		}
	}
}

func TestFake_PresetValues(t *testing.T) {
	f := random.NewFake().WithValues([]byte{0xaa, 0xbb}, []byte{0x01})

	b, _ := f.Bytes(4)
	if !bytes.Equal(b, []byte{0xaa, 0xbb, 0, 0}) {
		t.Errorf("first preset = %x", b)
	}
	b, _ = f.Bytes(1)
	if !bytes.Equal(b, []byte{0x01}) {
		t.Errorf("second preset = %x", b)
	}
}

func TestFake_Deterministic(t *testing.T) {
	f1 := random.NewFake()
	f2 := random.NewFake()

	a, _ := f1.Bytes(16)
	b, _ := f2.Bytes(16)
	if !bytes.Equal(a, b) {
		t.Error("fresh fakes should produce the same sequence")
	}

	c, _ := f1.Bytes(16)
	if bytes.Equal(a, c) {
		t.Error("successive calls should differ")
	}
}

func TestFake_WithError(t *testing.T) {
	boom := errors.New("entropy exhausted")
	f := random.NewFake().WithError(boom)

	if _, err := f.Bytes(16); !errors.Is(err, boom) {
		t.Errorf("Bytes err = %v", err)
	}
	if _, err := f.String(8); !errors.Is(err, boom) {
		t.Errorf("String err = %v", err)
	}
}
