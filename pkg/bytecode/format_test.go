package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWriteReadRoundTrip builds a small program by hand (one block with a
// Load/Send/Store chain, one scope covering it) and checks that writing it
// to the container format and reading it back yields a structurally
// identical program.
func TestWriteReadRoundTrip(t *testing.T) {
	prog := &Program{
		Blocks: []*BasicBlock{
			{Index: 0, Instructions: []Instruction{
				&Load{Dst: 0, Name: "Int"},
				&Send{Dst: 1, Obj: 0, Msg: "clone", Stamp: StringStamp("::lit_3")},
				&Send{Dst: 2, Obj: 1, Msg: "store_value", Stamp: StringStamp("3")},
				&Store{Obj: 3, Key: "a", Src: 2, Mutable: true},
				&Jump{Target: 1},
			}},
			{Index: 1, Instructions: []Instruction{
				&JumpSaved{HasRetval: true, Retval: 2},
			}},
		},
		Scopes: []*LexicalScope{
			{Beginning: 0, End: 1, Flags: CanBreak | CanContinue, ContinueDest: 0, BreakDest: 1, IsGlobal: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, prog))
	require.NotZero(t, buf.Len())

	res, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, res.Program.Blocks, 2)
	require.Len(t, res.Program.Scopes, 1)

	require.Equal(t, prog.Blocks[0].Instructions, res.Program.Blocks[0].Instructions)
	require.Equal(t, prog.Blocks[1].Instructions, res.Program.Blocks[1].Instructions)
	require.Equal(t, prog.Scopes[0], res.Program.Scopes[0])

	// The largest register referenced anywhere is r3 (the Store's Obj),
	// so the reconstructed register file must hold 4 slots.
	require.EqualValues(t, 4, res.RegisterFileSize())
}

func TestReadUnknownTagIsFileParsingError(t *testing.T) {
	buf := bytes.NewReader([]byte{0xFE})
	_, err := Read(buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "FileParsingError")
}

func TestReadUnknownStampTagIsFileParsingError(t *testing.T) {
	prog := &Program{Blocks: []*BasicBlock{{Index: 0, Instructions: []Instruction{
		&Send{Dst: 0, Obj: 0, Msg: "x", Stamp: NoStamp},
	}}}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, prog))

	raw := buf.Bytes()
	// Layout: tagBlock, opSend, dst(4), obj(4), "x" len+bytes(5), stampTag(1), tagEnd.
	// The stamp tag is the byte right before the trailing tagEnd.
	stampTagPos := len(raw) - 2
	raw[stampTagPos] = 0xAB

	_, err := Read(bytes.NewReader(raw))
	require.Error(t, err)
	require.Contains(t, err.Error(), "FileParsingError")
}

func TestEmptyProgramRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &Program{}))
	res, err := Read(&buf)
	require.NoError(t, err)
	require.Empty(t, res.Program.Blocks)
	require.Empty(t, res.Program.Scopes)
	require.Zero(t, res.RegisterFileSize())
}
