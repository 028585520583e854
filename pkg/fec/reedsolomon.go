// Package fec implements a systematic Reed-Solomon code over GF(2^8).
//
// A codeword is the message followed by its parity symbols. With nsym parity
// symbols, up to nsym/2 corrupted bytes anywhere in the codeword are
// corrected.
package fec

import (
	"errors"
	"fmt"
)

// MaxCodewordLength is the longest codeword the field supports.
const MaxCodewordLength = 255

var (
	ErrInvalidLength = errors.New("invalid codeword length")
	ErrTooManyErrors = errors.New("too many errors to correct")
)

type Codec struct {
	nsym      int
	generator []byte // highest degree first, monic
}

// New returns a codec that appends nsym parity bytes to every message.
func New(nsym int) (*Codec, error) {
	if nsym < 1 || nsym >= MaxCodewordLength {
		return nil, fmt.Errorf("%w: %d parity symbols", ErrInvalidLength, nsym)
	}

	g := []byte{1}
	for i := 0; i < nsym; i++ {
		g = mulBE(g, []byte{1, gfPow(i)})
	}

	return &Codec{nsym: nsym, generator: g}, nil
}

func (c *Codec) ParitySymbols() int {
	return c.nsym
}

// Correctable is the number of byte errors Decode is guaranteed to repair.
func (c *Codec) Correctable() int {
	return c.nsym / 2
}

// Encode returns msg followed by its parity.
func (c *Codec) Encode(msg []byte) ([]byte, error) {
	if len(msg) == 0 || len(msg)+c.nsym > MaxCodewordLength {
		return nil, fmt.Errorf("%w: %d data + %d parity", ErrInvalidLength, len(msg), c.nsym)
	}

	out := make([]byte, len(msg)+c.nsym)
	copy(out, msg)

	// polynomial long division by the generator; the remainder is the parity
	for i := 0; i < len(msg); i++ {
		coef := out[i]
		if coef == 0 {
			continue
		}
		for j := 1; j < len(c.generator); j++ {
			out[i+j] ^= gfMul(c.generator[j], coef)
		}
	}
	copy(out, msg)

	return out, nil
}

// Decode corrects block in place when possible and returns the message part
// together with the number of bytes that were repaired.
func (c *Codec) Decode(block []byte) ([]byte, int, error) {
	n := len(block)
	if n <= c.nsym || n > MaxCodewordLength {
		return nil, 0, fmt.Errorf("%w: %d bytes with %d parity", ErrInvalidLength, n, c.nsym)
	}

	synd, clean := c.syndromes(block)
	if clean {
		return block[:n-c.nsym], 0, nil
	}

	locator, err := c.errorLocator(synd)
	if err != nil {
		return nil, 0, err
	}

	positions := findErrors(locator, n)
	if len(positions) != len(locator)-1 {
		return nil, 0, fmt.Errorf("%w: locator degree %d, %d roots", ErrTooManyErrors, len(locator)-1, len(positions))
	}

	// evaluator = S(x) * locator(x) mod x^nsym, lowest degree first
	evaluator := make([]byte, c.nsym)
	for i := 0; i < c.nsym; i++ {
		var v byte
		for j := 0; j <= i && j < len(locator); j++ {
			v ^= gfMul(locator[j], synd[i-j])
		}
		evaluator[i] = v
	}

	for _, pos := range positions {
		e := n - 1 - pos
		x := gfPow(e)
		xInv := gfPow(-e)

		// formal derivative keeps the odd terms only
		var deriv byte
		for i := 1; i < len(locator); i += 2 {
			deriv ^= gfMul(locator[i], gfPow(-e*(i-1)))
		}
		if deriv == 0 {
			return nil, 0, fmt.Errorf("%w: zero derivative", ErrTooManyErrors)
		}

		block[pos] ^= gfDiv(gfMul(x, evalLE(evaluator, xInv)), deriv)
	}

	if _, clean := c.syndromes(block); !clean {
		return nil, 0, fmt.Errorf("%w: residual syndrome", ErrTooManyErrors)
	}

	return block[:n-c.nsym], len(positions), nil
}

func (c *Codec) syndromes(block []byte) ([]byte, bool) {
	synd := make([]byte, c.nsym)
	clean := true
	for i := range synd {
		synd[i] = evalBE(block, gfPow(i))
		if synd[i] != 0 {
			clean = false
		}
	}
	return synd, clean
}

// errorLocator runs Berlekamp-Massey and returns the locator polynomial
// lowest degree first.
func (c *Codec) errorLocator(synd []byte) ([]byte, error) {
	cur := make([]byte, 1, c.nsym+1)
	cur[0] = 1
	prev := []byte{1}
	length := 0
	shift := 1
	var prevDelta byte = 1

	for n := 0; n < c.nsym; n++ {
		delta := synd[n]
		for i := 1; i <= length && i < len(cur); i++ {
			delta ^= gfMul(cur[i], synd[n-i])
		}

		if delta == 0 {
			shift++
			continue
		}

		scale := gfDiv(delta, prevDelta)
		next := make([]byte, max(len(cur), len(prev)+shift))
		copy(next, cur)
		for i, p := range prev {
			next[i+shift] ^= gfMul(scale, p)
		}

		if 2*length <= n {
			prev = cur
			length = n + 1 - length
			prevDelta = delta
			shift = 1
		} else {
			shift++
		}
		cur = next
	}

	if 2*length > c.nsym {
		return nil, fmt.Errorf("%w: %d errors, %d parity", ErrTooManyErrors, length, c.nsym)
	}

	for len(cur) > length+1 {
		if cur[len(cur)-1] != 0 {
			return nil, fmt.Errorf("%w: inconsistent locator", ErrTooManyErrors)
		}
		cur = cur[:len(cur)-1]
	}

	return cur, nil
}

// findErrors is a Chien search: position p of an n byte codeword holds the
// coefficient of x^(n-1-p), so an error there makes alpha^-(n-1-p) a root.
func findErrors(locator []byte, n int) []int {
	var ret []int
	for p := 0; p < n; p++ {
		if evalLE(locator, gfPow(-(n-1-p))) == 0 {
			ret = append(ret, p)
		}
	}
	return ret
}
