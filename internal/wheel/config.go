// Package wheel holds the eight-segment wheel configuration and the typed
// errors shared by every layer of the game.
package wheel

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Segments is the number of positions on the wheel.
const Segments = 8

// DiscriminatorLen is the size of the record-type prefix in the persisted layout.
const DiscriminatorLen = 8

// RecordLen is the persisted size of a Config: discriminator plus 8 little-endian u16.
const RecordLen = DiscriminatorLen + Segments*2

// Discriminator identifies a persisted Config record.
var Discriminator = func() [DiscriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:Config"))
	var d [DiscriminatorLen]byte
	copy(d[:], sum[:DiscriminatorLen])
	return d
}()

var wheelIDPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Config is the write-once multiplier table. Multipliers are in units of the base stake.
type Config struct {
	Multipliers [Segments]uint16 `json:"multipliers"`
}

// NewConfig validates the multiplier count and builds a Config.
func NewConfig(multipliers []uint16) (Config, error) {
	if len(multipliers) != Segments {
		return Config{}, Errorf(KindInvalidMultiplierCount, "expected %d multipliers, got %d", Segments, len(multipliers))
	}
	var cfg Config
	copy(cfg.Multipliers[:], multipliers)
	return cfg, nil
}

// ParseMultipliers converts loosely typed input (JSON, YAML, flags) to u16 values.
func ParseMultipliers(values []int) ([]uint16, error) {
	if len(values) != Segments {
		return nil, Errorf(KindInvalidMultiplierCount, "expected %d multipliers, got %d", Segments, len(values))
	}
	out := make([]uint16, Segments)
	for i, v := range values {
		if v < 0 || v > math.MaxUint16 {
			return nil, Errorf(KindInvalidMultiplier, "multiplier %d is %d, must be within 0..%d", i, v, math.MaxUint16)
		}
		out[i] = uint16(v)
	}
	return out, nil
}

// ParseMultiplierList parses a comma separated list such as "0,10,20,30,40,50,60,70".
func ParseMultiplierList(s string) ([]uint16, error) {
	if strings.TrimSpace(s) == "" {
		return nil, Errorf(KindInvalidMultiplierCount, "expected %d multipliers, got none", Segments)
	}
	fields := strings.Split(s, ",")
	values := make([]int, 0, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, Wrap(KindInvalidMultiplier, fmt.Sprintf("multiplier %d is not an integer: %q", i, f), err)
		}
		values = append(values, v)
	}
	return ParseMultipliers(values)
}

// Slice returns a copy of the multipliers as a slice.
func (c Config) Slice() []uint16 {
	out := make([]uint16, Segments)
	copy(out, c.Multipliers[:])
	return out
}

// ExpectedMultiplier is the mean multiplier over a uniform index.
func (c Config) ExpectedMultiplier() decimal.Decimal {
	var sum int64
	for _, m := range c.Multipliers {
		sum += int64(m)
	}
	return decimal.NewFromInt(sum).Div(decimal.NewFromInt(Segments))
}

// MarshalBinary encodes the persisted layout.
func (c Config) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordLen)
	copy(buf, Discriminator[:])
	for i, m := range c.Multipliers {
		binary.LittleEndian.PutUint16(buf[DiscriminatorLen+i*2:], m)
	}
	return buf, nil
}

// UnmarshalBinary decodes the persisted layout.
func (c *Config) UnmarshalBinary(data []byte) error {
	if len(data) != RecordLen {
		return fmt.Errorf("wheel config record is %d bytes, want %d", len(data), RecordLen)
	}
	if [DiscriminatorLen]byte(data[:DiscriminatorLen]) != Discriminator {
		return fmt.Errorf("wheel config record has unknown discriminator %x", data[:DiscriminatorLen])
	}
	for i := range c.Multipliers {
		c.Multipliers[i] = binary.LittleEndian.Uint16(data[DiscriminatorLen+i*2:])
	}
	return nil
}

// ValidateID checks a wheel identifier.
func ValidateID(id string) error {
	if !wheelIDPattern.MatchString(id) {
		return Errorf(KindInvalidWheelID, "wheel id %q must be 1-64 characters of [a-z0-9_-]", id)
	}
	return nil
}
