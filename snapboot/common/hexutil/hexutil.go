// Package hexutil implements the hex-with-0x-prefix quantity encoding used
// by the Ethereum JSON-RPC interface. Decoding is strict: empty input,
// a missing prefix and leading zeros are distinct errors rather than a
// silent zero, so callers can tell "absent/unknown" from "genuinely zero".
package hexutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrEmptyString   = errors.New("empty hex string")
	ErrMissingPrefix = errors.New("hex string without 0x prefix")
	ErrEmptyNumber   = errors.New("hex string \"0x\"")
	ErrLeadingZero   = errors.New("hex number with leading zero digits")
	ErrSyntax        = errors.New("invalid hex string")
	ErrUint64Range   = errors.New("hex number > 64 bits")
)

func has0xPrefix(input string) bool {
	return len(input) >= 2 && input[0] == '0' && (input[1] == 'x' || input[1] == 'X')
}

func checkNumber(input string) (string, error) {
	if len(input) == 0 {
		return "", ErrEmptyString
	}
	if !has0xPrefix(input) {
		return "", ErrMissingPrefix
	}
	input = input[2:]
	if len(input) == 0 {
		return "", ErrEmptyNumber
	}
	if len(input) > 1 && input[0] == '0' {
		return "", ErrLeadingZero
	}
	return input, nil
}

// DecodeUint64 decodes a hex string with 0x prefix as a quantity.
func DecodeUint64(input string) (uint64, error) {
	raw, err := checkNumber(input)
	if err != nil {
		return 0, err
	}
	dec, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, mapError(err)
	}
	return dec, nil
}

// EncodeUint64 encodes i as a hex string with 0x prefix.
func EncodeUint64(i uint64) string {
	enc := make([]byte, 2, 10)
	copy(enc, "0x")
	return string(strconv.AppendUint(enc, i, 16))
}

func mapError(err error) error {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		switch {
		case errors.Is(numErr.Err, strconv.ErrRange):
			return ErrUint64Range
		case errors.Is(numErr.Err, strconv.ErrSyntax):
			return ErrSyntax
		}
	}
	return err
}

// Uint64 marshals/unmarshals as a JSON quantity string with 0x prefix.
// The zero value marshals as "0x0".
type Uint64 uint64

func (b Uint64) MarshalText() ([]byte, error) {
	return []byte(EncodeUint64(uint64(b))), nil
}

func (b *Uint64) UnmarshalJSON(input []byte) error {
	var raw string
	if err := json.Unmarshal(input, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return b.UnmarshalText([]byte(raw))
}

func (b *Uint64) UnmarshalText(input []byte) error {
	dec, err := DecodeUint64(string(input))
	if err != nil {
		return err
	}
	*b = Uint64(dec)
	return nil
}

func (b Uint64) String() string {
	return EncodeUint64(uint64(b))
}
