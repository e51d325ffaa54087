package cache

import (
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/inantubek/rmnist/pkg/models"
)

// DefaultQuantum is the resolution continuous fields are rounded to before hashing.
const DefaultQuantum = 1e-6

// Key identifies a configuration up to quantization.
type Key uint64

func (k Key) String() string {
	return strconv.FormatUint(uint64(k), 16)
}

// Keyer derives cache keys from configurations.
type Keyer struct {
	quantum float64
}

// NewKeyer creates a Keyer rounding continuous fields to multiples of quantum.
// A non-positive quantum selects DefaultQuantum.
func NewKeyer(quantum float64) Keyer {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	return Keyer{quantum: quantum}
}

// Quantum returns the rounding resolution
func (k Keyer) Quantum() float64 {
	return k.quantum
}

// Canonical renders config in a fixed field order with continuous fields
// replaced by their quantized integer multiples.
func (k Keyer) Canonical(config models.Configuration) string {
	var b strings.Builder
	b.Grow(96)
	writeField(&b, "ensemble_size", int64(config.EnsembleSize))
	writeField(&b, "lr", k.quantize(config.LearningRate))
	writeField(&b, "nk1", int64(config.Kernels1))
	writeField(&b, "nk2", int64(config.Kernels2))
	writeField(&b, "weight_decay", k.quantize(config.WeightDecay))
	return b.String()
}

// KeyOf hashes the canonical form of config.
func (k Keyer) KeyOf(config models.Configuration) Key {
	return Key(xxhash.Sum64String(k.Canonical(config)))
}

func (k Keyer) quantize(v float64) int64 {
	return int64(math.Round(v / k.quantum))
}

func writeField(b *strings.Builder, name string, v int64) {
	if b.Len() > 0 {
		b.WriteByte(';')
	}
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strconv.FormatInt(v, 10))
}
