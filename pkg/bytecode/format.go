// This file implements the .ostamp binary container: a flat stream of
// tagged records (basic block starts, scope records, instructions)
// terminated by an end-of-stream tag.
//
// Layout:
//
//	0xBB <instructions...>   start of a basic block; every following
//	                          instruction record belongs to it until the
//	                          next 0xBB, 0xAA, or 0x00
//	0xAA <scope record>      a lexical scope
//	0x00                     end of stream
//
// Integers are written native-endian (this implementation fixes that to
// little-endian, the dominant convention among the platforms Stamp targets)
// as 32-bit or 8-bit words; strings are a u32 length followed by raw bytes,
// no terminator.
package bytecode

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/stamplang/stamp/pkg/kind"
)

var order = binary.LittleEndian

const (
	tagBlock byte = 0xBB
	tagScope byte = 0xAA
	tagEnd   byte = 0x00
)

const (
	opSend      byte = 0x01
	opLoad      byte = 0x02
	opStore     byte = 0x03
	opJump      byte = 0x04
	opJumpTrue  byte = 0x05
	opJumpFalse byte = 0x06
	opJumpSaved byte = 0x07
)

const (
	stampTagNone     byte = 0x00
	stampTagRegister byte = 0x01
	stampTagString   byte = 0x02
	stampTagBlock    byte = 0x03
)

// Program is the serializable output of the generator: the full list of
// basic blocks plus the full list of lexical scopes.
type Program struct {
	Blocks []*BasicBlock
	Scopes []*LexicalScope
}

// DecodeResult is returned by Read: the Program plus MaxRegister, the
// largest register index observed in any instruction, used to size the
// interpreter's register file the way the generator's own counter would
// have.
type DecodeResult struct {
	Program      *Program
	MaxRegister  Register
	registerSeen bool
}

// RegisterFileSize returns max(seen register)+1, or 0 if no register was
// ever referenced.
func (d *DecodeResult) RegisterFileSize() uint32 {
	if !d.registerSeen {
		return 0
	}
	return uint32(d.MaxRegister) + 1
}

// Write serializes prog to w in the container format.
func Write(w io.Writer, prog *Program) error {
	for _, b := range prog.Blocks {
		if err := writeByte(w, tagBlock); err != nil {
			return err
		}
		for _, instr := range b.Instructions {
			if err := writeInstruction(w, instr); err != nil {
				return errors.Wrap(err, "write instruction")
			}
		}
	}
	for _, s := range prog.Scopes {
		if err := writeByte(w, tagScope); err != nil {
			return err
		}
		if err := writeScope(w, s); err != nil {
			return errors.Wrap(err, "write scope")
		}
	}
	return writeByte(w, tagEnd)
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	order.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeI32(w io.Writer, v int32) error { return writeU32(w, uint32(v)) }

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeBool(w io.Writer, b bool) error {
	if b {
		return writeByte(w, 1)
	}
	return writeByte(w, 0)
}

func writeStamp(w io.Writer, s Stamp) error {
	switch s.Kind {
	case StampNone:
		return writeByte(w, stampTagNone)
	case StampRegister:
		if err := writeByte(w, stampTagRegister); err != nil {
			return err
		}
		return writeU32(w, uint32(s.Register))
	case StampString:
		if err := writeByte(w, stampTagString); err != nil {
			return err
		}
		return writeString(w, s.String)
	case StampBlock:
		if err := writeByte(w, stampTagBlock); err != nil {
			return err
		}
		return writeU32(w, uint32(s.Block))
	default:
		return kind.New(kind.FileParsingError, "unknown stamp kind %d", s.Kind)
	}
}

func writeInstruction(w io.Writer, instr Instruction) error {
	switch i := instr.(type) {
	case *Send:
		if err := writeByte(w, opSend); err != nil {
			return err
		}
		if err := writeU32(w, uint32(i.Dst)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(i.Obj)); err != nil {
			return err
		}
		if err := writeString(w, i.Msg); err != nil {
			return err
		}
		return writeStamp(w, i.Stamp)
	case *Load:
		if err := writeByte(w, opLoad); err != nil {
			return err
		}
		if err := writeU32(w, uint32(i.Dst)); err != nil {
			return err
		}
		return writeString(w, i.Name)
	case *Store:
		if err := writeByte(w, opStore); err != nil {
			return err
		}
		if err := writeU32(w, uint32(i.Obj)); err != nil {
			return err
		}
		if err := writeString(w, i.Key); err != nil {
			return err
		}
		if err := writeU32(w, uint32(i.Src)); err != nil {
			return err
		}
		return writeBool(w, i.Mutable)
	case *Jump:
		if err := writeByte(w, opJump); err != nil {
			return err
		}
		return writeU32(w, uint32(i.Target))
	case *JumpTrue:
		if err := writeByte(w, opJumpTrue); err != nil {
			return err
		}
		if err := writeU32(w, uint32(i.Target)); err != nil {
			return err
		}
		return writeU32(w, uint32(i.Cond))
	case *JumpFalse:
		if err := writeByte(w, opJumpFalse); err != nil {
			return err
		}
		if err := writeU32(w, uint32(i.Target)); err != nil {
			return err
		}
		return writeU32(w, uint32(i.Cond))
	case *JumpSaved:
		if err := writeByte(w, opJumpSaved); err != nil {
			return err
		}
		if !i.HasRetval {
			return writeU32(w, 0)
		}
		// Register 0 is a valid register, so it is shifted by one on
		// the wire; readInstruction mirrors the shift on the way back.
		return writeU32(w, uint32(i.Retval)+1)
	default:
		return kind.New(kind.FileParsingError, "unknown instruction type %T", instr)
	}
}

func writeScope(w io.Writer, s *LexicalScope) error {
	if err := writeBool(w, s.IsGlobal); err != nil {
		return err
	}
	if err := writeI32(w, int32(s.Beginning)); err != nil {
		return err
	}
	if err := writeByte(w, byte(s.Flags)); err != nil {
		return err
	}
	if s.Flags.Has(CanContinue) {
		if err := writeU32(w, uint32(s.ContinueDest)); err != nil {
			return err
		}
	}
	if s.Flags.Has(CanBreak) {
		if err := writeU32(w, uint32(s.BreakDest)); err != nil {
			return err
		}
	}
	return writeI32(w, int32(s.End))
}

// Read deserializes a Program previously written with Write. It also
// tracks the maximum register index referenced by any instruction, so the
// caller can size a register file without re-running the generator.
func Read(r io.Reader) (*DecodeResult, error) {
	res := &DecodeResult{Program: &Program{}}
	var cur *BasicBlock

	for {
		tagBuf := [1]byte{}
		if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
			if err == io.EOF {
				return nil, kind.Wrap(kind.FileParsingError, err, "unexpected end of stream")
			}
			return nil, kind.Wrap(kind.FileParsingError, err, "reading tag")
		}
		switch tagBuf[0] {
		case tagEnd:
			return res, nil
		case tagBlock:
			cur = &BasicBlock{Index: BlockIndex(len(res.Program.Blocks))}
			res.Program.Blocks = append(res.Program.Blocks, cur)
		case tagScope:
			s, err := readScope(r)
			if err != nil {
				return nil, err
			}
			res.Program.Scopes = append(res.Program.Scopes, s)
		default:
			if cur == nil {
				return nil, kind.New(kind.FileParsingError, "instruction record before any basic block")
			}
			instr, err := readInstruction(r, tagBuf[0], res)
			if err != nil {
				return nil, err
			}
			cur.Instructions = append(cur.Instructions, instr)
		}
	}
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, kind.Wrap(kind.FileParsingError, err, "reading byte")
	}
	return buf[0], nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, kind.Wrap(kind.FileParsingError, err, "reading u32")
	}
	return order.Uint32(buf[:]), nil
}

func readI32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

func readBool(r io.Reader) (bool, error) {
	b, err := readByte(r)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", kind.Wrap(kind.FileParsingError, err, "reading string body")
	}
	return string(buf), nil
}

func readStamp(r io.Reader) (Stamp, error) {
	tag, err := readByte(r)
	if err != nil {
		return Stamp{}, err
	}
	switch tag {
	case stampTagNone:
		return NoStamp, nil
	case stampTagRegister:
		v, err := readU32(r)
		if err != nil {
			return Stamp{}, err
		}
		return RegisterStamp(Register(v)), nil
	case stampTagString:
		s, err := readString(r)
		if err != nil {
			return Stamp{}, err
		}
		return StringStamp(s), nil
	case stampTagBlock:
		v, err := readU32(r)
		if err != nil {
			return Stamp{}, err
		}
		return BlockStamp(BlockIndex(v)), nil
	default:
		return Stamp{}, kind.New(kind.FileParsingError, "unknown stamp tag 0x%02x", tag)
	}
}

func readInstruction(r io.Reader, op byte, res *DecodeResult) (Instruction, error) {
	track := func(regs ...Register) {
		for _, reg := range regs {
			if !res.registerSeen || reg > res.MaxRegister {
				res.MaxRegister = reg
				res.registerSeen = true
			}
		}
	}

	switch op {
	case opSend:
		dst, err := readU32(r)
		if err != nil {
			return nil, err
		}
		obj, err := readU32(r)
		if err != nil {
			return nil, err
		}
		msg, err := readString(r)
		if err != nil {
			return nil, err
		}
		stamp, err := readStamp(r)
		if err != nil {
			return nil, err
		}
		track(Register(dst), Register(obj))
		if stamp.Kind == StampRegister {
			track(stamp.Register)
		}
		return &Send{Dst: Register(dst), Obj: Register(obj), Msg: msg, Stamp: stamp}, nil
	case opLoad:
		dst, err := readU32(r)
		if err != nil {
			return nil, err
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		track(Register(dst))
		return &Load{Dst: Register(dst), Name: name}, nil
	case opStore:
		obj, err := readU32(r)
		if err != nil {
			return nil, err
		}
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		src, err := readU32(r)
		if err != nil {
			return nil, err
		}
		mutable, err := readBool(r)
		if err != nil {
			return nil, err
		}
		track(Register(obj), Register(src))
		return &Store{Obj: Register(obj), Key: key, Src: Register(src), Mutable: mutable}, nil
	case opJump:
		target, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return &Jump{Target: BlockIndex(target)}, nil
	case opJumpTrue:
		target, err := readU32(r)
		if err != nil {
			return nil, err
		}
		cond, err := readU32(r)
		if err != nil {
			return nil, err
		}
		track(Register(cond))
		return &JumpTrue{Target: BlockIndex(target), Cond: Register(cond)}, nil
	case opJumpFalse:
		target, err := readU32(r)
		if err != nil {
			return nil, err
		}
		cond, err := readU32(r)
		if err != nil {
			return nil, err
		}
		track(Register(cond))
		return &JumpFalse{Target: BlockIndex(target), Cond: Register(cond)}, nil
	case opJumpSaved:
		raw, err := readU32(r)
		if err != nil {
			return nil, err
		}
		if raw == 0 {
			return &JumpSaved{HasRetval: false}, nil
		}
		track(Register(raw - 1))
		return &JumpSaved{HasRetval: true, Retval: Register(raw - 1)}, nil
	default:
		return nil, kind.New(kind.FileParsingError, "unknown opcode 0x%02x", op)
	}
}

func readScope(r io.Reader) (*LexicalScope, error) {
	isGlobal, err := readBool(r)
	if err != nil {
		return nil, err
	}
	begin, err := readI32(r)
	if err != nil {
		return nil, err
	}
	flagsByte, err := readByte(r)
	if err != nil {
		return nil, err
	}
	flags := ScopeFlags(flagsByte)

	s := &LexicalScope{
		Beginning: BlockIndex(begin),
		Flags:     flags,
		IsGlobal:  isGlobal,
	}
	if flags.Has(CanContinue) {
		v, err := readU32(r)
		if err != nil {
			return nil, err
		}
		s.ContinueDest = BlockIndex(v)
	}
	if flags.Has(CanBreak) {
		v, err := readU32(r)
		if err != nil {
			return nil, err
		}
		s.BreakDest = BlockIndex(v)
	}
	end, err := readI32(r)
	if err != nil {
		return nil, err
	}
	s.End = BlockIndex(end)
	return s, nil
}
