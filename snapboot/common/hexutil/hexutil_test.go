package hexutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeUint64(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		input string
		want  uint64
		err   error
	}{
		{input: "", err: ErrEmptyString},
		{input: "0", err: ErrMissingPrefix},
		{input: "0x", err: ErrEmptyNumber},
		{input: "0x0", want: 0},
		{input: "0x01", err: ErrLeadingZero},
		{input: "0x2", want: 0x2},
		{input: "0x2F2", want: 0x2f2},
		{input: "0X2F2", want: 0x2f2},
		{input: "0xbbb", want: 0xbbb},
		{input: "0xffffffffffffffff", want: 0xffffffffffffffff},
		{input: "0xffffffffffffffff1", err: ErrUint64Range},
		{input: "0xxx", err: ErrSyntax},
		{input: "0x1zz01", err: ErrSyntax},
	} {
		got, err := DecodeUint64(tt.input)
		if tt.err != nil {
			require.ErrorIs(t, err, tt.err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		require.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestEncodeUint64(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0x0", EncodeUint64(0))
	require.Equal(t, "0x1", EncodeUint64(1))
	require.Equal(t, "0xf4240", EncodeUint64(1_000_000))
}

func TestUint64JSON(t *testing.T) {
	t.Parallel()

	var v Uint64
	require.NoError(t, json.Unmarshal([]byte(`"0xf4240"`), &v))
	require.Equal(t, Uint64(1_000_000), v)

	require.Error(t, json.Unmarshal([]byte(`1000000`), &v))
	require.ErrorIs(t, json.Unmarshal([]byte(`""`), &v), ErrEmptyString)
}
