package seeded

// Rand produces floats in [0,1).
type Rand interface {
	Float64() float64
}

// Mulberry32 is a small-state 32-bit generator. Not for security.
type Mulberry32 struct {
	state uint32
}

// NewMulberry32 seeds the generator. Every seed is valid, zero included.
func NewMulberry32(seed uint32) *Mulberry32 {
	return &Mulberry32{state: seed}
}

// FromSeed hashes seed and returns a generator over it.
func FromSeed(seed string) *Mulberry32 {
	return NewMulberry32(Hash(seed))
}

func (m *Mulberry32) Uint32() uint32 {
	m.state += 0x6D2B79F5
	t := m.state
	t = (t ^ t>>15) * (t | 1)
	t = (t + (t^t>>7)*(t|61)) ^ t
	return t ^ t>>14
}

func (m *Mulberry32) Float64() float64 {
	return float64(m.Uint32()) / 4294967296
}

// RandomInt draws an integer in [min, max], both inclusive.
func RandomInt(r Rand, min, max int) int {
	return int(r.Float64()*float64(max-min+1)) + min
}

// Shuffle permutes items in place with a Fisher-Yates pass driven by r.
func Shuffle[T any](r Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := RandomInt(r, 0, i)
		items[i], items[j] = items[j], items[i]
	}
}
