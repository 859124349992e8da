package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// CurrencyScale is the number of fractional digits kept by Currency values
	CurrencyScale = 6
	// QuantityScale is the number of fractional digits kept by Quantity values
	QuantityScale = 9
)

// Currency is a signed monetary amount fixed to CurrencyScale fractional digits.
// Any extra digits are truncated toward zero, never rounded.
type Currency struct {
	value decimal.Decimal
}

// NewCurrency truncates d to CurrencyScale digits
func NewCurrency(d decimal.Decimal) Currency {
	return Currency{value: d.Truncate(CurrencyScale)}
}

// CurrencyFromInt returns a whole currency amount
func CurrencyFromInt(i int64) Currency {
	return Currency{value: decimal.NewFromInt(i)}
}

// ParseCurrency parses a decimal string such as "-12.50"
func ParseCurrency(s string) (Currency, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Currency{}, fmt.Errorf("invalid currency value %q: %w", s, err)
	}
	return NewCurrency(d), nil
}

// MustCurrency is like ParseCurrency but panics on error.
func MustCurrency(s string) Currency {
	c, err := ParseCurrency(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Currency) Decimal() decimal.Decimal   { return c.value }
func (c Currency) Add(o Currency) Currency     { return Currency{value: c.value.Add(o.value)} }
func (c Currency) Sub(o Currency) Currency     { return Currency{value: c.value.Sub(o.value)} }
func (c Currency) Neg() Currency               { return Currency{value: c.value.Neg()} }
func (c Currency) Equal(o Currency) bool       { return c.value.Equal(o.value) }
func (c Currency) IsZero() bool                { return c.value.IsZero() }
func (c Currency) IsPositive() bool            { return c.value.IsPositive() }
func (c Currency) IsNegative() bool            { return c.value.IsNegative() }
func (c Currency) LessThan(o Currency) bool    { return c.value.LessThan(o.value) }
func (c Currency) GreaterThan(o Currency) bool { return c.value.GreaterThan(o.value) }
func (c Currency) String() string              { return c.value.String() }

// MarshalJSON encodes the amount as a JSON string to keep every digit.
func (c Currency) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.value.String())
}

func (c *Currency) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = NewCurrency(d)
	return nil
}

func (c Currency) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(c.value.String())
}

func (c *Currency) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := ParseCurrency(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Quantity is a signed share count fixed to QuantityScale fractional digits.
// Any extra digits are truncated toward zero, never rounded.
type Quantity struct {
	value decimal.Decimal
}

// NewQuantity truncates d to QuantityScale digits
func NewQuantity(d decimal.Decimal) Quantity {
	return Quantity{value: d.Truncate(QuantityScale)}
}

// QuantityFromInt returns a whole share count
func QuantityFromInt(i int64) Quantity {
	return Quantity{value: decimal.NewFromInt(i)}
}

// ParseQuantity parses a decimal string such as "0.333333333"
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return NewQuantity(d), nil
}

// MustQuantity is like ParseQuantity but panics on error.
func MustQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Decimal() decimal.Decimal { return q.value }
func (q Quantity) Add(o Quantity) Quantity   { return Quantity{value: q.value.Add(o.value)} }
func (q Quantity) Sub(o Quantity) Quantity   { return Quantity{value: q.value.Sub(o.value)} }
func (q Quantity) Neg() Quantity             { return Quantity{value: q.value.Neg()} }
func (q Quantity) Equal(o Quantity) bool     { return q.value.Equal(o.value) }
func (q Quantity) IsZero() bool              { return q.value.IsZero() }
func (q Quantity) IsNegative() bool          { return q.value.IsNegative() }
func (q Quantity) String() string            { return q.value.String() }

// Mul scales the quantity by a split multiplier, truncating the product.
func (q Quantity) Mul(m Multiplier) Quantity {
	return NewQuantity(q.MulExact(m))
}

// MulExact returns the untruncated product of q and m.
func (q Quantity) MulExact(m Multiplier) decimal.Decimal {
	return q.value.Mul(m.value)
}

// MulPrice values the quantity at a unit price, truncating to currency scale.
func (q Quantity) MulPrice(price Currency) Currency {
	return NewCurrency(q.value.Mul(price.value))
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.value.String())
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*q = NewQuantity(d)
	return nil
}

func (q Quantity) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(q.value.String())
}

func (q *Quantity) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Multiplier is an exact, strictly positive share ratio (new shares per old share).
type Multiplier struct {
	value decimal.Decimal
}

// MultiplierOne leaves quantities unchanged
var MultiplierOne = Multiplier{value: decimal.NewFromInt(1)}

// NewMultiplier returns ErrInvalidMultiplier unless d > 0
func NewMultiplier(d decimal.Decimal) (Multiplier, error) {
	if !d.IsPositive() {
		return Multiplier{}, fmt.Errorf("%w: got %s", ErrInvalidMultiplier, d)
	}
	return Multiplier{value: d}, nil
}

// ParseMultiplier parses a ratio such as "2" or "0.5"
func ParseMultiplier(s string) (Multiplier, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Multiplier{}, fmt.Errorf("invalid multiplier %q: %w", s, err)
	}
	return NewMultiplier(d)
}

// MustMultiplier is like ParseMultiplier but panics on error.
func MustMultiplier(s string) Multiplier {
	m, err := ParseMultiplier(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Multiplier) Decimal() decimal.Decimal     { return m.value }
func (m Multiplier) Mul(o Multiplier) Multiplier { return Multiplier{value: m.value.Mul(o.value)} }
func (m Multiplier) IsPositive() bool            { return m.value.IsPositive() }
func (m Multiplier) String() string              { return m.value.String() }

func (m Multiplier) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.value.String())
}

func (m *Multiplier) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := NewMultiplier(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
