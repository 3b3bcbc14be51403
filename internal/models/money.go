package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Money is an exact monetary amount. Arithmetic keeps full precision so
// intermediate values like unit price times quantity never lose sub-cent
// digits; Round quantizes a final amount to 2 digits half-up. Stored as BSON
// Decimal128 so aggregation pipelines can sum it server-side.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{d}
}

// Round quantizes the amount to 2 digits, half away from zero.
func (m Money) Round() Money {
	return Money{m.Decimal.Round(2)}
}

// MoneyFromString parses a decimal string like "19.90".
func MoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return NewMoney(d), nil
}

// MustMoney parses a decimal string and panics on malformed input. Intended
// for constants and tests only.
func MustMoney(s string) Money {
	m, err := MoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

func ZeroMoney() Money {
	return Money{decimal.Zero}
}

func (m Money) Add(other Money) Money {
	return NewMoney(m.Decimal.Add(other.Decimal))
}

func (m Money) Sub(other Money) Money {
	return NewMoney(m.Decimal.Sub(other.Decimal))
}

func (m Money) MulInt(n int) Money {
	return NewMoney(m.Decimal.Mul(decimal.NewFromInt(int64(n))))
}

func (m Money) MulRate(rate decimal.Decimal) Money {
	return NewMoney(m.Decimal.Mul(rate))
}

func (m Money) IsNegative() bool {
	return m.Decimal.IsNegative()
}

func (m Money) IsZero() bool {
	return m.Decimal.IsZero()
}

func (m Money) LessThan(other Money) bool {
	return m.Decimal.LessThan(other.Decimal)
}

func (m Money) GreaterThan(other Money) bool {
	return m.Decimal.GreaterThan(other.Decimal)
}

func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.Decimal.GreaterThanOrEqual(other.Decimal)
}

func (m Money) Equal(other Money) bool {
	return m.Decimal.Equal(other.Decimal)
}

// String renders the amount rounded to 2 digits ("15.00", not "15").
func (m Money) String() string {
	return m.Decimal.StringFixed(2)
}

// MarshalBSONValue stores the amount as Decimal128, keeping new writes exact
// even when legacy documents used doubles.
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(m.Decimal.String())
	if err != nil {
		return 0, nil, err
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue accepts Decimal128, double, int and string BSON values,
// allowing legacy documents to be decoded without failing the entire request.
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null:
		*m = ZeroMoney()
		return nil
	case bsontype.Decimal128:
		var d128 primitive.Decimal128
		if err := bson.UnmarshalValue(t, data, &d128); err != nil {
			return err
		}
		d, err := decimal.NewFromString(d128.String())
		if err != nil {
			return err
		}
		*m = NewMoney(d)
		return nil
	case bsontype.Double:
		var f float64
		if err := bson.UnmarshalValue(t, data, &f); err != nil {
			return err
		}
		*m = NewMoney(decimal.NewFromFloat(f))
		return nil
	case bsontype.Int32:
		var v int32
		if err := bson.UnmarshalValue(t, data, &v); err != nil {
			return err
		}
		*m = NewMoney(decimal.NewFromInt(int64(v)))
		return nil
	case bsontype.Int64:
		var v int64
		if err := bson.UnmarshalValue(t, data, &v); err != nil {
			return err
		}
		*m = NewMoney(decimal.NewFromInt(v))
		return nil
	case bsontype.String:
		var s string
		if err := bson.UnmarshalValue(t, data, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("cannot decode %q into Money: %w", s, err)
		}
		*m = NewMoney(d)
		return nil
	default:
		return fmt.Errorf("cannot decode %s into Money", t)
	}
}
