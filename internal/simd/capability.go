// Package simd provides the scoring kernels used by the quantization
// hot paths, with a one-time CPU capability probe selecting the fastest
// available implementation at process start.
//
// Kernel selection happens in init() and is never changed afterwards:
// the kernel function pointers are write-once, read-many, so callers
// need no synchronization.
package simd

import (
	"os"
	"runtime"
	"strings"
)

// ISA represents a vector instruction set architecture.
type ISA uint8

const (
	// Generic is the portable pure-Go implementation.
	Generic ISA = iota
	// NEON is ARM64 NEON (128-bit ASIMD).
	NEON
	// AVX2 is x86-64 AVX2 with FMA (256-bit).
	AVX2
	// AVX512 is x86-64 AVX-512 (F+BW, 512-bit).
	AVX512
)

// String returns the string representation of an ISA.
func (i ISA) String() string {
	switch i {
	case Generic:
		return "generic"
	case NEON:
		return "neon"
	case AVX2:
		return "avx2"
	case AVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

// ParseISA parses a string into an ISA value.
func ParseISA(s string) (ISA, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generic":
		return Generic, true
	case "neon":
		return NEON, true
	case "avx2":
		return AVX2, true
	case "avx512":
		return AVX512, true
	default:
		return Generic, false
	}
}

// Package-level state, initialized once before any kernel call.
var (
	activeISA   ISA
	hasOverride bool

	// CPU feature flags (set by platform-specific init)
	hasASIMD    bool
	hasAVX2     bool
	hasAVX512F  bool
	hasAVX512BW bool
)

// initCapabilities is called from platform-specific init functions after
// CPU features have been detected.
func initCapabilities() {
	if override := os.Getenv("VECQUANT_SIMD"); override != "" {
		if isa, ok := ParseISA(override); ok && isISAAvailable(isa) {
			hasOverride = true
			activeISA = isa
			selectKernels(activeISA)
			return
		}
		// Invalid or unavailable override, fall through to auto-detection.
	}

	activeISA = selectBestISA()
	selectKernels(activeISA)
}

// isISAAvailable checks if an ISA is supported on this CPU.
func isISAAvailable(isa ISA) bool {
	switch isa {
	case Generic:
		return true
	case NEON:
		return hasASIMD
	case AVX2:
		return hasAVX2
	case AVX512:
		return hasAVX512F && hasAVX512BW
	default:
		return false
	}
}

// selectBestISA chooses the optimal ISA for the current platform.
func selectBestISA() ISA {
	switch runtime.GOARCH {
	case "arm64":
		if hasASIMD {
			return NEON
		}
	case "amd64":
		if hasAVX512F && hasAVX512BW {
			return AVX512
		}
		if hasAVX2 {
			return AVX2
		}
	}
	return Generic
}

// ActiveISA returns the ISA selected at process start.
func ActiveISA() ISA {
	return activeISA
}

// IsOverridden returns true if VECQUANT_SIMD was set and honored.
func IsOverridden() bool {
	return hasOverride
}
