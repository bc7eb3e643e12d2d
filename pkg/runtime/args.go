package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Args are the raw JSON parameters of one request, keyed by ABI input name.
// Values stay raw until they are packed against the method's input types.
type Args map[string]json.RawMessage

// Result is what a method returns to the caller.
type Result map[string]any

// missingArg marks a parameter absent from the request.
type missingArg string

// Get returns the raw value of the named parameter.
func (a Args) Get(name string) any {
	v, ok := a[name]
	if !ok {
		return missingArg(name)
	}
	return v
}

// ValueKey holds the wei sent with a transaction. A dot cannot appear in an
// ABI input name, so the key never shadows a parameter such as ERC20's value.
const ValueKey = "msg.value"

// Value returns the wei to send with a payable call, stored under ValueKey.
func (a Args) Value() Value {
	return Value(a[ValueKey])
}

// Value is a raw wei amount: a JSON number, a decimal string or a 0x hex string.
type Value json.RawMessage

// NoValue sends no wei. Non-payable methods pass it.
var NoValue Value

// Int parses v. An absent value is nil.
func (v Value) Int() (*big.Int, error) {
	if len(v) == 0 || string(v) == "null" {
		return nil, nil
	}
	n, err := parseBig(json.RawMessage(v))
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if n.Sign() < 0 {
		return nil, errors.New("value: negative amount")
	}
	return n, nil
}

// coerce converts a request argument to the Go type go-ethereum packs for t.
// Values that are not raw JSON are assumed to be typed already.
func coerce(t gethabi.Type, v any) (any, error) {
	switch v := v.(type) {
	case missingArg:
		return nil, fmt.Errorf("missing argument %q", string(v))
	case json.RawMessage:
		return decode(t, v)
	case nil:
		return nil, errors.New("nil argument")
	default:
		return v, nil
	}
}

func decode(t gethabi.Type, raw json.RawMessage) (any, error) {
	switch t.T {
	case gethabi.AddressTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("address: %w", err)
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil

	case gethabi.IntTy, gethabi.UintTy:
		n, err := parseBig(raw)
		if err != nil {
			return nil, err
		}
		return fitInt(t, n)

	case gethabi.BoolTy:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("bool: %w", err)
		}
		return b, nil

	case gethabi.StringTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("string: %w", err)
		}
		return s, nil

	case gethabi.BytesTy:
		return decodeHex(raw)

	case gethabi.FixedBytesTy:
		b, err := decodeHex(raw)
		if err != nil {
			return nil, err
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("bytes%d: got %d bytes", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case gethabi.SliceTy, gethabi.ArrayTy:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%s: %w", t.String(), err)
		}
		var out reflect.Value
		if t.T == gethabi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			if len(items) != t.Size {
				return nil, fmt.Errorf("%s: got %d elements", t.String(), len(items))
			}
			out = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			e, err := decode(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(e))
		}
		return out.Interface(), nil

	case gethabi.TupleTy:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("tuple: %w", err)
		}
		out := reflect.New(t.GetType()).Elem()
		for i, name := range t.TupleRawNames {
			f, ok := fields[name]
			if !ok {
				return nil, fmt.Errorf("tuple: missing field %q", name)
			}
			e, err := decode(*t.TupleElems[i], f)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			out.Field(i).Set(reflect.ValueOf(e))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported argument type %s", t.String())
}

var bigIntType = reflect.TypeOf(&big.Int{})

// fitInt range-checks n against t and returns the Go integer type go-ethereum
// expects: a sized int for 8, 16, 32 and 64 bits, *big.Int otherwise.
func fitInt(t gethabi.Type, n *big.Int) (any, error) {
	if t.T == gethabi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%s: %s out of range", t.String(), n)
		}
		if t.GetType() == bigIntType {
			return n, nil
		}
		return reflect.ValueOf(n.Uint64()).Convert(t.GetType()).Interface(), nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return nil, fmt.Errorf("%s: %s out of range", t.String(), n)
	}
	if t.GetType() == bigIntType {
		return n, nil
	}
	return reflect.ValueOf(n.Int64()).Convert(t.GetType()).Interface(), nil
}

// parseBig accepts a JSON number or a decimal or 0x-prefixed string.
func parseBig(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return nil, fmt.Errorf("integer: %w", err)
		}
		s = num.String()
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func decodeHex(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("bytes: %w", err)
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("bytes %q: %w", s, err)
	}
	return b, nil
}
