package simd

// Wide kernel variants. These are written so the compiler can keep the
// partial sums in vector registers: independent accumulator lanes, no
// cross-iteration dependencies inside the unrolled body. They are only
// installed when the capability probe reports a vector ISA, where the
// unrolled shape reliably beats the plain loop.

func dotWide(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	i := 0
	for ; i+8 <= n; i += 8 {
		s0 += a[i]*b[i] + a[i+4]*b[i+4]
		s1 += a[i+1]*b[i+1] + a[i+5]*b[i+5]
		s2 += a[i+2]*b[i+2] + a[i+6]*b[i+6]
		s3 += a[i+3]*b[i+3] + a[i+7]*b[i+7]
	}
	sum := s0 + s1 + s2 + s3
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func squaredL2Wide(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	i := 0
	for ; i+8 <= n; i += 8 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		d4 := a[i+4] - b[i+4]
		d5 := a[i+5] - b[i+5]
		d6 := a[i+6] - b[i+6]
		d7 := a[i+7] - b[i+7]
		s0 += d0*d0 + d4*d4
		s1 += d1*d1 + d5*d5
		s2 += d2*d2 + d6*d6
		s3 += d3*d3 + d7*d7
	}
	sum := s0 + s1 + s2 + s3
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func pqLookupWide(table []float32, codes []byte, m, k int) float32 {
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= m; i += 4 {
		base := i * k
		s0 += table[base+int(codes[i])]
		s1 += table[base+k+int(codes[i+1])]
		s2 += table[base+2*k+int(codes[i+2])]
		s3 += table[base+3*k+int(codes[i+3])]
	}
	sum := s0 + s1 + s2 + s3
	for ; i < m; i++ {
		sum += table[i*k+int(codes[i])]
	}
	return sum
}

func sq8L2Wide(t, s []float32, code []byte) float32 {
	var a0, a1, a2, a3 float32
	n := len(code)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := t[i] - float32(code[i])*s[i]
		d1 := t[i+1] - float32(code[i+1])*s[i+1]
		d2 := t[i+2] - float32(code[i+2])*s[i+2]
		d3 := t[i+3] - float32(code[i+3])*s[i+3]
		a0 += d0 * d0
		a1 += d1 * d1
		a2 += d2 * d2
		a3 += d3 * d3
	}
	sum := a0 + a1 + a2 + a3
	for ; i < n; i++ {
		d := t[i] - float32(code[i])*s[i]
		sum += d * d
	}
	return sum
}

func sq8DotWide(w []float32, code []byte) float32 {
	var a0, a1, a2, a3 float32
	n := len(code)
	i := 0
	for ; i+4 <= n; i += 4 {
		a0 += float32(code[i]) * w[i]
		a1 += float32(code[i+1]) * w[i+1]
		a2 += float32(code[i+2]) * w[i+2]
		a3 += float32(code[i+3]) * w[i+3]
	}
	sum := a0 + a1 + a2 + a3
	for ; i < n; i++ {
		sum += float32(code[i]) * w[i]
	}
	return sum
}
