package anchor

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Argument values use the Borsh layout: fixed width little-endian integers,
// one byte booleans, u32 length prefixes for strings and byte vectors, and
// no padding or type tags. Each type marshals with a value receiver and
// unmarshals with a pointer receiver, so a pointer can be passed to both
// EncodeArgs and DecodeArgs.
type (
	U8     uint8
	U16    uint16
	U32    uint32
	U64    uint64
	I8     int8
	I16    int16
	I32    int32
	I64    int64
	Bool   bool
	String string
	Bytes  []byte
	Pubkey solana.PublicKey
)

func (v U8) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteUint8(uint8(v)) }

func (v *U8) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint8()
	*v = U8(x)
	return err
}

func (v U16) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteUint16(uint16(v), bin.LE) }

func (v *U16) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint16(bin.LE)
	*v = U16(x)
	return err
}

func (v U32) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteUint32(uint32(v), bin.LE) }

func (v *U32) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint32(bin.LE)
	*v = U32(x)
	return err
}

func (v U64) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteUint64(uint64(v), bin.LE) }

func (v *U64) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint64(bin.LE)
	*v = U64(x)
	return err
}

func (v I8) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteUint8(uint8(v)) }

func (v *I8) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint8()
	*v = I8(x)
	return err
}

func (v I16) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteUint16(uint16(v), bin.LE) }

func (v *I16) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint16(bin.LE)
	*v = I16(x)
	return err
}

func (v I32) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteUint32(uint32(v), bin.LE) }

func (v *I32) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint32(bin.LE)
	*v = I32(x)
	return err
}

func (v I64) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteUint64(uint64(v), bin.LE) }

func (v *I64) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint64(bin.LE)
	*v = I64(x)
	return err
}

func (v Bool) MarshalWithEncoder(enc *bin.Encoder) error { return enc.WriteBool(bool(v)) }

func (v *Bool) UnmarshalWithDecoder(dec *bin.Decoder) error {
	x, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	switch x {
	case 0:
		*v = false
	case 1:
		*v = true
	default:
		return fmt.Errorf("invalid bool value %d", x)
	}
	return nil
}

func (v String) MarshalWithEncoder(enc *bin.Encoder) error {
	return Bytes(v).MarshalWithEncoder(enc)
}

func (v *String) UnmarshalWithDecoder(dec *bin.Decoder) error {
	var b Bytes
	if err := b.UnmarshalWithDecoder(dec); err != nil {
		return err
	}
	*v = String(b)
	return nil
}

func (v Bytes) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint32(uint32(len(v)), bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes(v, false)
}

func (v *Bytes) UnmarshalWithDecoder(dec *bin.Decoder) error {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	if int64(n) > int64(dec.Remaining()) {
		return fmt.Errorf("length %d exceeds remaining %d bytes", n, dec.Remaining())
	}
	b, err := dec.ReadNBytes(int(n))
	if err != nil {
		return err
	}
	*v = append(Bytes(nil), b...)
	return nil
}

func (v Pubkey) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteBytes(v[:], false)
}

func (v *Pubkey) UnmarshalWithDecoder(dec *bin.Decoder) error {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(v[:], b)
	return nil
}

// PublicKey returns v as a solana.PublicKey.
func (v Pubkey) PublicKey() solana.PublicKey { return solana.PublicKey(v) }

// Tuple encodes its elements back to back in order.
type Tuple []bin.BinaryMarshaler

// TupleArgs groups elems into a tuple argument.
func TupleArgs(elems ...bin.BinaryMarshaler) Tuple {
	return Tuple(elems)
}

// NoArgs is the argument of an instruction that takes none. It encodes to
// nothing.
func NoArgs() Tuple {
	return Tuple{}
}

func (t Tuple) MarshalWithEncoder(enc *bin.Encoder) error {
	for i, elem := range t {
		if elem == nil {
			return fmt.Errorf("tuple element %d is nil", i)
		}
		if err := elem.MarshalWithEncoder(enc); err != nil {
			return fmt.Errorf("tuple element %d: %w", i, err)
		}
	}
	return nil
}

// EncodeArgs serializes v with the Borsh encoder.
func EncodeArgs(v bin.BinaryMarshaler) ([]byte, error) {
	if v == nil {
		return nil, errors.New("nil argument")
	}
	var buf bytes.Buffer
	if err := v.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeArgs deserializes data into v. Trailing bytes are an error.
func DecodeArgs(data []byte, v bin.BinaryUnmarshaler) error {
	dec := bin.NewBorshDecoder(data)
	if err := v.UnmarshalWithDecoder(dec); err != nil {
		return err
	}
	if n := dec.Remaining(); n > 0 {
		return fmt.Errorf("%d trailing bytes", n)
	}
	return nil
}

// DecodeTuple deserializes data into elems in order.
func DecodeTuple(data []byte, elems ...bin.BinaryUnmarshaler) error {
	return DecodeArgs(data, tupleDecoder(elems))
}

type tupleDecoder []bin.BinaryUnmarshaler

func (t tupleDecoder) UnmarshalWithDecoder(dec *bin.Decoder) error {
	for i, elem := range t {
		if err := elem.UnmarshalWithDecoder(dec); err != nil {
			return fmt.Errorf("tuple element %d: %w", i, err)
		}
	}
	return nil
}
