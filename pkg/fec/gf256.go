package fec

// GF(2^8) arithmetic with the primitive polynomial x^8+x^4+x^3+x^2+1 and
// generator element 2.

const primitive = 0x11d

var (
	gfExp [512]byte
	gfLog [256]int
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		gfExp[i] = byte(x)
		gfLog[x] = i
		x <<= 1
		if x&0x100 != 0 {
			x ^= primitive
		}
	}
	// doubled so that exp[log a + log b] never needs a modulo
	for i := 255; i < len(gfExp); i++ {
		gfExp[i] = gfExp[i-255]
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[gfLog[a]+gfLog[b]]
}

func gfDiv(a, b byte) byte {
	if b == 0 {
		panic("fec: division by zero")
	}
	if a == 0 {
		return 0
	}
	return gfExp[(gfLog[a]+255-gfLog[b])%255]
}

// gfPow returns alpha^e for any integer e.
func gfPow(e int) byte {
	e %= 255
	if e < 0 {
		e += 255
	}
	return gfExp[e]
}

func gfInv(a byte) byte {
	return gfExp[255-gfLog[a]]
}

// evalBE evaluates a polynomial stored highest degree first.
func evalBE(p []byte, x byte) byte {
	var y byte
	for _, c := range p {
		y = gfMul(y, x) ^ c
	}
	return y
}

// evalLE evaluates a polynomial stored lowest degree first.
func evalLE(p []byte, x byte) byte {
	var y byte
	for i := len(p) - 1; i >= 0; i-- {
		y = gfMul(y, x) ^ p[i]
	}
	return y
}

// mulBE multiplies two polynomials stored highest degree first.
func mulBE(a, b []byte) []byte {
	ret := make([]byte, len(a)+len(b)-1)
	for i, ca := range a {
		if ca == 0 {
			continue
		}
		for j, cb := range b {
			ret[i+j] ^= gfMul(ca, cb)
		}
	}
	return ret
}
