package simd

import (
	"math"
	"math/rand"
	"testing"
)

func randVec(r *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestDotMatchesGeneric(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 3, 8, 17, 128, 769} {
		a := randVec(r, n)
		b := randVec(r, n)

		want := dotGeneric(a, b)
		for _, impl := range []func(a, b []float32) float32{dotWide, Dot} {
			got := impl(a, b)
			if math.Abs(float64(got-want)) > 1e-3 {
				t.Fatalf("n=%d: got %f, want %f", n, got, want)
			}
		}
	}
}

func TestSquaredL2MatchesGeneric(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for _, n := range []int{0, 1, 7, 8, 65, 512} {
		a := randVec(r, n)
		b := randVec(r, n)

		want := squaredL2Generic(a, b)
		for _, impl := range []func(a, b []float32) float32{squaredL2Wide, SquaredL2} {
			got := impl(a, b)
			if math.Abs(float64(got-want)) > 1e-3 {
				t.Fatalf("n=%d: got %f, want %f", n, got, want)
			}
		}
	}
}

func TestPQLookup(t *testing.T) {
	const m, k = 6, 16
	r := rand.New(rand.NewSource(3))

	table := randVec(r, m*k)
	codes := make([]byte, m)
	var want float32
	for i := range codes {
		codes[i] = byte(r.Intn(k))
		want += table[i*k+int(codes[i])]
	}

	for _, impl := range []func(table []float32, codes []byte, m, k int) float32{
		pqLookupGeneric, pqLookupWide, PQLookup,
	} {
		got := impl(table, codes, m, k)
		if math.Abs(float64(got-want)) > 1e-5 {
			t.Fatalf("got %f, want %f", got, want)
		}
	}
}

func TestHamming(t *testing.T) {
	a := []byte{0b10101010, 0xFF, 0x00, 0x0F}
	b := []byte{0b01010101, 0xFF, 0xFF, 0x00}

	want := 8 + 0 + 8 + 4
	if got := Hamming(a, b); got != want {
		t.Fatalf("got %d, want %d", got, want)
	}

	// Long inputs exercise the word-at-a-time path.
	long1 := make([]byte, 100)
	long2 := make([]byte, 100)
	for i := range long1 {
		long1[i] = byte(i)
		long2[i] = byte(i ^ 0x01)
	}
	if got := Hamming(long1, long2); got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}

func TestPopcount(t *testing.T) {
	if got := Popcount([]byte{0xFF, 0x01, 0x00}); got != 9 {
		t.Fatalf("got %d, want 9", got)
	}
	long := make([]byte, 64)
	for i := range long {
		long[i] = 0x03
	}
	if got := Popcount(long); got != 128 {
		t.Fatalf("got %d, want 128", got)
	}
}

func TestSQ8Kernels(t *testing.T) {
	const dim = 37
	r := rand.New(rand.NewSource(4))

	tq := randVec(r, dim)
	s := randVec(r, dim)
	w := randVec(r, dim)
	code := make([]byte, dim)
	for i := range code {
		code[i] = byte(r.Intn(256))
	}

	var wantL2, wantDot float32
	for i := 0; i < dim; i++ {
		d := tq[i] - float32(code[i])*s[i]
		wantL2 += d * d
		wantDot += float32(code[i]) * w[i]
	}

	for _, impl := range []func(t, s []float32, code []byte) float32{sq8L2Generic, sq8L2Wide, SQ8L2} {
		if got := impl(tq, s, code); math.Abs(float64(got-wantL2)) > 1e-2 {
			t.Fatalf("L2: got %f, want %f", got, wantL2)
		}
	}
	for _, impl := range []func(w []float32, code []byte) float32{sq8DotGeneric, sq8DotWide, SQ8Dot} {
		if got := impl(w, code); math.Abs(float64(got-wantDot)) > 1e-2 {
			t.Fatalf("dot: got %f, want %f", got, wantDot)
		}
	}
}

func TestActiveISAAvailable(t *testing.T) {
	if !isISAAvailable(ActiveISA()) {
		t.Fatalf("selected ISA %s not available on this CPU", ActiveISA())
	}
}

func BenchmarkSquaredL2(b *testing.B) {
	r := rand.New(rand.NewSource(5))
	x := randVec(r, 768)
	y := randVec(r, 768)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = SquaredL2(x, y)
	}
}

func BenchmarkPQLookup(b *testing.B) {
	r := rand.New(rand.NewSource(6))
	table := randVec(r, 96*256)
	codes := make([]byte, 96)
	for i := range codes {
		codes[i] = byte(r.Intn(256))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = PQLookup(table, codes, 96, 256)
	}
}
