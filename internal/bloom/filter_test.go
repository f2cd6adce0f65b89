package bloom

import (
	"fmt"
	"testing"
)

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)

	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = fmt.Sprintf("player-%04d", i)
		f.Add(ids[i])
	}

	for _, id := range ids {
		if !f.MightContain(id) {
			t.Fatalf("false negative for %s", id)
		}
	}
	if f.Count() != 1000 {
		t.Errorf("Count = %d, want 1000", f.Count())
	}
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	f := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		f.Add(fmt.Sprintf("player-%04d", i))
	}

	falsePositives := 0
	probes := 10000
	for i := 0; i < probes; i++ {
		if f.MightContain(fmt.Sprintf("absent-%05d", i)) {
			falsePositives++
		}
	}

	// Target is 1%; allow generous slack for hash variance
	rate := float64(falsePositives) / float64(probes)
	if rate > 0.05 {
		t.Errorf("false positive rate %.3f exceeds 0.05", rate)
	}

	if est := f.FalsePositiveRate(); est <= 0 || est >= 0.1 {
		t.Errorf("estimated FPR %.4f outside expected range", est)
	}
}

func TestFilter_Empty(t *testing.T) {
	f := New(100, 0.01)
	if f.MightContain("anything") {
		t.Error("empty filter should contain nothing")
	}
	if f.FalsePositiveRate() != 0 {
		t.Error("empty filter FPR should be 0")
	}
}

func TestFilter_SerializeRoundTrip(t *testing.T) {
	f := New(500, 0.01)
	for i := 0; i < 500; i++ {
		f.Add(fmt.Sprintf("player-%03d", i))
	}

	data := f.Serialize()
	restored, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if restored.Count() != f.Count() {
		t.Errorf("count mismatch: %d != %d", restored.Count(), f.Count())
	}
	for i := 0; i < 500; i++ {
		if !restored.MightContain(fmt.Sprintf("player-%03d", i)) {
			t.Fatalf("false negative after round trip for player-%03d", i)
		}
	}
}

func TestDeserialize_Corrupt(t *testing.T) {
	if _, err := Deserialize([]byte("not a filter")); err == nil {
		t.Error("expected error for corrupt input")
	}
	if _, err := Deserialize(nil); err == nil {
		t.Error("expected error for empty input")
	}
}
