package fowl

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/fowl/tuple"
)

func TestEncodeValue_roundTrip(t *testing.T) {
	date := time.Date(2021, 3, 4, 5, 6, 7, 890_000_000, time.UTC)
	tests := []struct {
		name string
		in   any
		out  any
		tag  int64
	}{
		{"string", "fox", "fox", tagString},
		{"empty string", "", "", tagString},
		{"string with zero", "a\x00b", "a\x00b", tagString},
		{"int", 42, int64(42), tagInt},
		{"negative int64", int64(-7), int64(-7), tagInt},
		{"uint16", uint16(65535), int64(65535), tagInt},
		{"decimal", 1.5, 1.5, tagDecimal},
		{"float32", float32(0.25), 0.25, tagDecimal},
		{"huge decimal", 1e300, 1e300, tagDecimal},
		{"true", true, true, tagBool},
		{"false", false, false, tagBool},
		{"date", date, date, tagDate},
		{"date in other zone", date.In(time.FixedZone("X", 3600)), date, tagDate},
		{"json int", json.Number("12"), int64(12), tagInt},
		{"json decimal", json.Number("1.25"), 1.25, tagDecimal},
		{"nil", nil, nil, tagNull},
		{"nil pointer", (*int)(nil), nil, tagNull},
		{"pointer", &[]int{1}[0], int64(1), tagInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeValue(tt.in)
			require.NoError(t, err)

			tup, err := tuple.Unpack(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.tag, tup[0])

			v, err := DecodeValue(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.out, v)
		})
	}
}

func TestEncodeValue_dateTruncatesToMillis(t *testing.T) {
	in := time.Date(2020, 1, 2, 3, 4, 5, 123_456_789, time.UTC)
	v, err := DecodeValue(must(EncodeValue(in)))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 123_000_000, time.UTC), v)
}

func TestEncodeValue_nested(t *testing.T) {
	type point struct {
		X, Y int
	}
	raw, err := EncodeValue(point{1, 2})
	require.NoError(t, err)
	v, err := DecodeValue(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"X": int64(1), "Y": int64(2)}, v)

	// sorted keys make equal maps encode identically
	a := must(EncodeValue(map[int]string{2: "b", 1: "a"}))
	b := must(EncodeValue(map[int]string{1: "a", 2: "b"}))
	assert.Equal(t, a, b)
}

func TestEncodeValue_errors(t *testing.T) {
	_, err := EncodeValue(math.NaN())
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = EncodeValue(uint64(math.MaxUint64))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = EncodeValue(make(chan int))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	var ce *CodecError
	assert.True(t, errors.As(err, &ce))
}

func TestDecodeValue_errors(t *testing.T) {
	_, err := DecodeValue(tuple.Pack(int64(99), "x"))
	assert.ErrorIs(t, err, ErrUnknownTag)

	_, err = DecodeValue(tuple.Pack("s", "x"))
	assert.ErrorIs(t, err, ErrUnknownTag)

	_, err = DecodeValue(tuple.Pack(int64(tagInt), "not a number"))
	assert.ErrorContains(t, err, "invalid payload")

	_, err = DecodeValue(tuple.Pack(int64(tagDate), int64(2020)))
	assert.Error(t, err)

	_, err = DecodeValue(nil)
	assert.ErrorContains(t, err, "empty value")

	_, err = DecodeValue(x("02 66"))
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, x("02 66"), ce.Data)
}

func TestIndexElement(t *testing.T) {
	assert.Equal(t, 30.0, must(indexElement(30)))
	assert.Equal(t, 30.0, must(indexElement(int64(30))))
	assert.Equal(t, 30.0, must(indexElement(json.Number("30"))))
	assert.Equal(t, 30.5, must(indexElement(30.5)))
	assert.Equal(t, "Joshua", must(indexElement("Joshua")))
	assert.Equal(t, true, must(indexElement(true)))
	assert.Nil(t, must(indexElement(nil)))

	date := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, tuple.Tuple{int64(2021), int64(3), int64(4), int64(5), int64(6), int64(7), int64(0)}, must(indexElement(date)))

	blob := must(indexElement(map[string]any{"b": 1, "a": 2}))
	assert.IsType(t, []byte{}, blob)

	// integers and decimals share one ordering
	k1 := tuple.Pack(must(indexElement(2)))
	k2 := tuple.Pack(must(indexElement(2.5)))
	k3 := tuple.Pack(must(indexElement(int64(3))))
	assert.Less(t, string(k1), string(k2))
	assert.Less(t, string(k2), string(k3))
}

func TestNormalizeDecoded(t *testing.T) {
	v := normalizeDecoded(map[any]any{"a": uint64(1), int8(2): []any{float32(0.5), uint64(1 << 63)}})
	assert.Equal(t, map[string]any{"a": int64(1), "2": []any{0.5, float64(1 << 63)}}, v)
}
