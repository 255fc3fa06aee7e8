package mintscript

import "testing"

// FuzzRecognize checks that Recognize never panics on arbitrary script bytes
// and that anything it accepts round-trips through Write.
func FuzzRecognize(f *testing.F) {
	f.Add([]byte{}, uint64(0))
	f.Add([]byte{0x00, 0x20}, uint64(1))
	f.Add(make([]byte, 34), uint64(1000))
	f.Add([]byte{0x6a, 0x20, 0x01, 0x02}, uint64(1)) // OP_RETURN-shaped

	f.Fuzz(func(t *testing.T, script []byte, value uint64) {
		bagID, amount, ok := Recognize(script, value)
		if !ok {
			return
		}
		if amount != value {
			t.Fatalf("Recognize changed the passed-through value: got %d, want %d", amount, value)
		}
		rebuilt, err := Write(bagID)
		if err != nil {
			t.Fatalf("Write(%s) failed after a successful Recognize: %v", bagID, err)
		}
		if string(rebuilt) != string(script) {
			t.Fatalf("Write(Recognize(script)) != script")
		}
	})
}
