package lazysql

import (
	"database/sql"
	"fmt"
	"io"
	"math/big"
)

// Param is a bindable statement parameter. The set of implementations is
// closed, so the binder dispatches over it exhaustively instead of
// type-testing arbitrary values at runtime.
//
// During positional binding a collection parameter consumes one placeholder
// slot per element; every other kind consumes exactly one slot.
type Param interface{ isParam() }

type nullParam struct{}

type valueParam struct{ v any }

type optionParam struct {
	v       any
	present bool
}

type listParam struct{ elems []Param }

type leftParam struct{ v any }

type rightParam struct{ v any }

type blobParam struct{ r io.Reader }

type clobParam struct{ r io.Reader }

type outParam struct {
	name string
	dest any
}

func (nullParam) isParam()   {}
func (valueParam) isParam()  {}
func (optionParam) isParam() {}
func (listParam) isParam()   {}
func (leftParam) isParam()   {}
func (rightParam) isParam()  {}
func (blobParam) isParam()   {}
func (clobParam) isParam()   {}
func (outParam) isParam()    {}

// Null binds SQL NULL.
func Null() Param { return nullParam{} }

// Value binds v as a single typed value. Exact-precision numerics
// (*big.Int, *big.Float) are rendered to their exact decimal string form.
func Value(v any) Param { return valueParam{v: v} }

// Char binds a single character as a one-rune string.
func Char(r rune) Param { return valueParam{v: string(r)} }

// Some binds the present half of an optional value, unwrapped one level.
func Some(v any) Param { return optionParam{v: v, present: true} }

// None binds an absent optional as SQL NULL.
func None() Param { return optionParam{} }

// Opt binds *v, or SQL NULL when v is nil.
func Opt[T any](v *T) Param {
	if v == nil {
		return optionParam{}
	}
	return optionParam{v: *v, present: true}
}

// Left binds the left branch of an either value, unwrapped one level.
func Left(v any) Param { return leftParam{v: v} }

// Right binds the right branch of an either value, unwrapped one level.
func Right(v any) Param { return rightParam{v: v} }

// In binds a collection; its single placeholder expands to one slot per
// element, and an empty collection deletes the placeholder outright.
func In(vals ...any) Param {
	elems := make([]Param, len(vals))
	for i, v := range vals {
		elems[i] = valueParam{v: v}
	}
	return listParam{elems: elems}
}

// Group binds a collection of already-built params, allowing mixed kinds and
// nesting inside one expanded placeholder.
func Group(params ...Param) Param { return listParam{elems: params} }

// Blob binds the full contents of r as a binary value.
func Blob(r io.Reader) Param { return blobParam{r: r} }

// Clob binds the full contents of r as a character value.
func Clob(r io.Reader) Param { return clobParam{r: r} }

// OutArg registers a named OUT parameter for a stored procedure call. The
// driver writes the procedure's output into dest, which must be a pointer.
func OutArg(name string, dest any) Param { return outParam{name: name, dest: dest} }

// slotCount reports how many placeholder slots p occupies after expansion.
func slotCount(p Param) int {
	if l, ok := p.(listParam); ok {
		n := 0
		for _, e := range l.elems {
			n += slotCount(e)
		}
		return n
	}
	return 1
}

// flattenArgs materializes params into driver arguments, one per slot, in
// the order the placeholders appear after expansion.
func flattenArgs(params []Param) ([]any, error) {
	args := make([]any, 0, len(params))
	var err error
	for _, p := range params {
		if args, err = appendArg(args, p); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func appendArg(args []any, p Param) ([]any, error) {
	switch v := p.(type) {
	case nullParam:
		return append(args, nil), nil
	case valueParam:
		a, err := driverValue(v.v)
		if err != nil {
			return nil, err
		}
		return append(args, a), nil
	case optionParam:
		if !v.present {
			return append(args, nil), nil
		}
		a, err := driverValue(v.v)
		if err != nil {
			return nil, err
		}
		return append(args, a), nil
	case leftParam:
		a, err := driverValue(v.v)
		if err != nil {
			return nil, err
		}
		return append(args, a), nil
	case rightParam:
		a, err := driverValue(v.v)
		if err != nil {
			return nil, err
		}
		return append(args, a), nil
	case listParam:
		var err error
		for _, e := range v.elems {
			if args, err = appendArg(args, e); err != nil {
				return nil, err
			}
		}
		return args, nil
	case blobParam:
		b, err := io.ReadAll(v.r)
		if err != nil {
			return nil, fmt.Errorf("lazysql: reading blob parameter: %w", err)
		}
		return append(args, b), nil
	case clobParam:
		b, err := io.ReadAll(v.r)
		if err != nil {
			return nil, fmt.Errorf("lazysql: reading clob parameter: %w", err)
		}
		return append(args, string(b)), nil
	case outParam:
		return append(args, sql.Out{Dest: v.dest}), nil
	default:
		return nil, fmt.Errorf("lazysql: unknown parameter kind %T", p)
	}
}

// driverValue normalizes values the drivers have no native binding for.
func driverValue(v any) (any, error) {
	switch t := v.(type) {
	case *big.Int:
		if t == nil {
			return nil, nil
		}
		return t.String(), nil
	case *big.Float:
		if t == nil {
			return nil, nil
		}
		return t.Text('f', -1), nil
	default:
		return v, nil
	}
}
