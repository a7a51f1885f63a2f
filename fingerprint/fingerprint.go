// Package fingerprint computes difference hashes of grayscale images and
// compares them.
//
// A fingerprint of hash size n has n*n bits. Bit (row, i) is 1 when pixel i
// of that row is strictly brighter than pixel i+1 after the image has been
// resampled to (n+1) columns by n rows. The canonical form is lowercase
// hexadecimal, 4 bits per digit, Digits(n) digits long. When n*n is not a
// multiple of 4 the bit string is left-padded with zero bits, so the
// leading digit only carries the low-order bits of the first nibble.
package fingerprint

import (
	"fmt"
	"image"
	"math/bits"
)

// DefaultHashSize yields 64-bit fingerprints (16 hex digits)
const DefaultHashSize = 8

const hexDigits = "0123456789abcdef"

// Fingerprint is a fixed-width difference hash. The zero value is not a
// valid fingerprint; obtain one from Compute or Parse.
type Fingerprint struct {
	hex      string
	hashSize int
}

// Digits returns the number of hex digits of a fingerprint with the given hash size
func Digits(hashSize int) int {
	return (hashSize*hashSize + 3) / 4
}

// padBits is the number of leading zero bits added to reach a whole digit
func padBits(hashSize int) int {
	return Digits(hashSize)*4 - hashSize*hashSize
}

// String returns the canonical hexadecimal form
func (f Fingerprint) String() string { return f.hex }

// MarshalText encodes the fingerprint as its hex form
func (f Fingerprint) MarshalText() ([]byte, error) { return []byte(f.hex), nil }

// HashSize returns the grid dimension the fingerprint was computed with
func (f Fingerprint) HashSize() int { return f.hashSize }

// Len returns the number of hex digits
func (f Fingerprint) Len() int { return len(f.hex) }

// IsZero reports whether f is the zero value
func (f Fingerprint) IsZero() bool { return f.hashSize == 0 }

// Parse validates s as the hex form of a fingerprint with the given hash size
func Parse(s string, hashSize int) (Fingerprint, error) {
	if hashSize < 1 {
		return Fingerprint{}, fmt.Errorf("invalid hash size %d", hashSize)
	}
	if want := Digits(hashSize); len(s) != want {
		return Fingerprint{}, fmt.Errorf("fingerprint %q has %d digits, want %d", s, len(s), want)
	}
	for i := 0; i < len(s); i++ {
		if hexValue(s[i]) < 0 {
			return Fingerprint{}, fmt.Errorf("fingerprint %q: invalid digit %q", s, s[i])
		}
	}
	if pad := padBits(hashSize); pad > 0 && hexValue(s[0])>>(4-pad) != 0 {
		return Fingerprint{}, fmt.Errorf("fingerprint %q: padding bits are not zero", s)
	}
	return Fingerprint{hex: s, hashSize: hashSize}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string, hashSize int) Fingerprint {
	fp, err := Parse(s, hashSize)
	if err != nil {
		panic(err)
	}
	return fp
}

// Compute returns the difference hash of img. A nil resampler selects the
// default one.
func Compute(img image.Image, hashSize int, r Resampler) (Fingerprint, error) {
	if hashSize < 1 {
		return Fingerprint{}, fmt.Errorf("invalid hash size %d", hashSize)
	}
	if img == nil {
		return Fingerprint{}, fmt.Errorf("cannot compute hash for nil image")
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return Fingerprint{}, fmt.Errorf("cannot compute hash for empty image (%dx%d)", b.Dx(), b.Dy())
	}
	if r == nil {
		r = Default()
	}

	small := r.Resample(img, hashSize+1, hashSize)
	if small == nil {
		return Fingerprint{}, fmt.Errorf("resampler %s failed", r.Name())
	}
	if got := small.Bounds(); got.Dx() != hashSize+1 || got.Dy() != hashSize {
		return Fingerprint{}, fmt.Errorf("resampler %s produced %dx%d, want %dx%d",
			r.Name(), got.Dx(), got.Dy(), hashSize+1, hashSize)
	}
	origin := small.Bounds().Min

	diff := make([]bool, 0, hashSize*hashSize)
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			left := small.GrayAt(origin.X+x, origin.Y+y).Y
			right := small.GrayAt(origin.X+x+1, origin.Y+y).Y
			diff = append(diff, left > right)
		}
	}

	return fromBits(diff, hashSize), nil
}

// fromBits renders a row-major bit sequence in canonical form
func fromBits(diff []bool, hashSize int) Fingerprint {
	out := make([]byte, 0, Digits(hashSize))

	// Leading zero bits go in front so the value of the bit string is preserved
	nibble, count := 0, padBits(hashSize)
	for _, bit := range diff {
		nibble <<= 1
		if bit {
			nibble |= 1
		}
		count++
		if count == 4 {
			out = append(out, hexDigits[nibble])
			nibble, count = 0, 0
		}
	}

	return Fingerprint{hex: string(out), hashSize: hashSize}
}

// Distance counts the hex digits at which a and b differ. This is coarser
// than a bit Hamming distance: one differing digit may hide 1 to 4 differing
// bits. Only the common prefix is compared when the lengths differ.
func Distance(a, b Fingerprint) int {
	n := len(a.hex)
	if len(b.hex) < n {
		n = len(b.hex)
	}

	d := 0
	for i := 0; i < n; i++ {
		if a.hex[i] != b.hex[i] {
			d++
		}
	}
	return d
}

// BitDistance counts differing bits over the common prefix of a and b.
// Used for diagnostics only; ranking uses Distance.
func BitDistance(a, b Fingerprint) int {
	n := len(a.hex)
	if len(b.hex) < n {
		n = len(b.hex)
	}

	d := 0
	for i := 0; i < n; i++ {
		x := uint8(hexValue(a.hex[i]) ^ hexValue(b.hex[i]))
		d += bits.OnesCount8(x)
	}
	return d
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}
