package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// Blob layout:
//
//	magic    [4]byte  "ECLB"
//	version  uint8
//	flags    uint8    bit 0: body is zstd compressed
//	count    uint32   big endian instruction count
//	checksum [32]byte blake3 of the uncompressed body
//	body     count x (uint32 length, canonical CBOR instruction)
const (
	FormatVersion uint8 = 1

	flagCompressed uint8 = 1 << 0

	headerSize = 4 + 1 + 1 + 4 + 32

	// maxInstructionSize bounds a single encoded instruction so that a
	// corrupt length prefix cannot trigger a huge allocation.
	maxInstructionSize = 1 << 20
)

var magic = [4]byte{'E', 'C', 'L', 'B'}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireValue struct {
	Kind  uint8       `cbor:"1,keyasint"`
	Bool  bool        `cbor:"2,keyasint,omitempty"`
	Num   float64     `cbor:"3,keyasint,omitempty"`
	Str   string      `cbor:"4,keyasint,omitempty"`
	Trust []float64   `cbor:"5,keyasint,omitempty"`
	Items []wireValue `cbor:"6,keyasint,omitempty"`
}

type wireInstruction struct {
	Op    uint8      `cbor:"1,keyasint"`
	Const *wireValue `cbor:"2,keyasint,omitempty"`
	Arg   int        `cbor:"3,keyasint,omitempty"`
	Argc  int        `cbor:"4,keyasint,omitempty"`
}

func toWireValue(v Value) wireValue {
	w := wireValue{Kind: uint8(v.kind)}
	switch v.kind {
	case KindBool:
		w.Bool = v.b
	case KindNumber:
		w.Num = v.n
	case KindString, KindDID:
		w.Str = v.s
	case KindTrustVector:
		w.Trust = v.tv[:]
	case KindArray:
		w.Items = make([]wireValue, len(v.arr))
		for i, item := range v.arr {
			w.Items[i] = toWireValue(item)
		}
	}
	return w
}

func fromWireValue(w wireValue) (Value, error) {
	switch Kind(w.Kind) {
	case KindNull:
		return Null(), nil
	case KindBool:
		return Bool(w.Bool), nil
	case KindNumber:
		return Number(w.Num), nil
	case KindString:
		return String(w.Str), nil
	case KindDID:
		return DID(w.Str), nil
	case KindTrustVector:
		if len(w.Trust) != NumDimensions {
			return Value{}, fmt.Errorf("trust vector has %d dimensions", len(w.Trust))
		}
		var tv TrustVector
		copy(tv[:], w.Trust)
		return Trust(tv), nil
	case KindArray:
		items := make([]Value, len(w.Items))
		for i, iw := range w.Items {
			item, err := fromWireValue(iw)
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Value{kind: KindArray, arr: items}, nil
	}
	return Value{}, fmt.Errorf("unknown value kind %d", w.Kind)
}

// EncodeOptions controls Encode.
type EncodeOptions struct {
	// Compress zstd-compresses the instruction body.
	Compress bool
}

// Encode serializes a program into the ECLB blob format.
func Encode(p Program, opts EncodeOptions) ([]byte, error) {
	body, err := encodeBody(p)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(body)

	var flags uint8
	if opts.Compress {
		body, err = compressZstd(body)
		if err != nil {
			return nil, fmt.Errorf("bytecode: compress: %w", err)
		}
		flags |= flagCompressed
	}

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out[0:4], magic[:])
	out[4] = FormatVersion
	out[5] = flags
	binary.BigEndian.PutUint32(out[6:10], uint32(len(p)))
	copy(out[10:headerSize], sum[:])
	return append(out, body...), nil
}

// Decode parses an ECLB blob, verifies its checksum and validates the
// resulting program.
func Decode(data []byte) (Program, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return nil, ErrInvalidMagic
	}
	if data[4] != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[4])
	}
	flags := data[5]
	count := binary.BigEndian.Uint32(data[6:10])
	var want [32]byte
	copy(want[:], data[10:headerSize])

	body := data[headerSize:]
	if flags&flagCompressed != 0 {
		var err error
		body, err = decompressZstd(body)
		if err != nil {
			return nil, fmt.Errorf("bytecode: decompress: %w", err)
		}
	}
	if blake3.Sum256(body) != want {
		return nil, ErrChecksumMismatch
	}

	p, err := decodeBody(body, count)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ContentID returns a stable base58 identifier for the program,
// independent of compression.
func ContentID(p Program) (string, error) {
	body, err := encodeBody(p)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(body)
	return base58.Encode(sum[:]), nil
}

func encodeBody(p Program) ([]byte, error) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	for i, in := range p {
		w := wireInstruction{Op: uint8(in.Op), Arg: in.Arg, Argc: in.Argc}
		if in.Op == OpPushConst {
			cv := toWireValue(in.Const)
			w.Const = &cv
		}
		enc, err := cborEncMode.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("bytecode: encode instruction %d: %w", i, err)
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf.Write(lenBuf[:])
		buf.Write(enc)
	}
	return buf.Bytes(), nil
}

func decodeBody(body []byte, count uint32) (Program, error) {
	p := make(Program, 0, min(int(count), len(body)/4))
	off := 0
	for i := uint32(0); i < count; i++ {
		if off+4 > len(body) {
			return nil, ErrTruncated
		}
		n := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if n > maxInstructionSize || off+n > len(body) {
			return nil, ErrTruncated
		}
		var w wireInstruction
		if err := cbor.Unmarshal(body[off:off+n], &w); err != nil {
			return nil, fmt.Errorf("bytecode: decode instruction %d: %w", i, err)
		}
		off += n

		in := Instruction{Op: Op(w.Op), Arg: w.Arg, Argc: w.Argc}
		if in.Op == OpPushConst {
			if w.Const == nil {
				return nil, &InvalidProgramError{Index: int(i), Reason: "PushConst without constant"}
			}
			v, err := fromWireValue(*w.Const)
			if err != nil {
				return nil, &InvalidProgramError{Index: int(i), Reason: err.Error()}
			}
			in.Const = v
		}
		p = append(p, in)
	}
	if off != len(body) {
		return nil, fmt.Errorf("bytecode: %d trailing bytes after %d instructions", len(body)-off, count)
	}
	return p, nil
}

func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
