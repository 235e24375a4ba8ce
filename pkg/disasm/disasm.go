// Package disasm renders the compiler's intermediate forms (the parsed
// AST, the generated bytecode, and a running VM's register file) as
// human-readable text for the CLI's -a/-b/-r dump flags. None of this
// output is a supported wire format — it exists only to be read.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/stamplang/stamp/pkg/ast"
	"github.com/stamplang/stamp/pkg/bytecode"
	"github.com/stamplang/stamp/pkg/object"
)

// AST writes an indented tree of prog's statements to w.
func AST(w io.Writer, prog *ast.Program) {
	for _, s := range prog.Statements {
		writeStatement(w, s, 0)
	}
}

func indent(w io.Writer, depth int) { fmt.Fprint(w, strings.Repeat("  ", depth)) }

func writeStatement(w io.Writer, stmt ast.Statement, depth int) {
	indent(w, depth)
	switch s := stmt.(type) {
	case *ast.Assign:
		mut := ""
		if s.Mut {
			mut = "mut "
		}
		fmt.Fprintf(w, "Assign %s%s :=\n", mut, s.Name)
		writeExpression(w, s.Value, depth+1)
	case *ast.ExprStatement:
		fmt.Fprintln(w, "ExprStatement")
		writeExpression(w, s.Expr, depth+1)
	case *ast.If:
		fmt.Fprintln(w, "If")
		writeExpression(w, s.Cond, depth+1)
		indent(w, depth)
		fmt.Fprintln(w, "Then")
		for _, st := range s.Then.Statements {
			writeStatement(w, st, depth+1)
		}
		if s.ElseBlock != nil {
			indent(w, depth)
			fmt.Fprintln(w, "Else")
			for _, st := range s.ElseBlock.Statements {
				writeStatement(w, st, depth+1)
			}
		}
	case *ast.While:
		fmt.Fprintln(w, "While")
		writeExpression(w, s.Cond, depth+1)
		indent(w, depth)
		fmt.Fprintln(w, "Body")
		for _, st := range s.Body.Statements {
			writeStatement(w, st, depth+1)
		}
	case *ast.Break:
		fmt.Fprintln(w, "Break")
	case *ast.Continue:
		fmt.Fprintln(w, "Continue")
	case *ast.Use:
		fmt.Fprintf(w, "Use %q\n", s.Path)
	default:
		fmt.Fprintf(w, "<unknown statement %T>\n", stmt)
	}
}

func writeExpression(w io.Writer, expr ast.Expression, depth int) {
	indent(w, depth)
	switch e := expr.(type) {
	case *ast.Ident:
		fmt.Fprintf(w, "Ident %s\n", e.Name)
	case *ast.Int:
		fmt.Fprintf(w, "Int %s\n", e.Value)
	case *ast.Char:
		fmt.Fprintf(w, "Char %s\n", e.Value)
	case *ast.String:
		fmt.Fprintf(w, "String %q\n", e.Value)
	case *ast.Value:
		fmt.Fprintf(w, "Value %s\n", e.Literal)
	case *ast.Vec:
		fmt.Fprintln(w, "Vec")
		for _, el := range e.Elements {
			writeExpression(w, el, depth+1)
		}
	case *ast.Send:
		fmt.Fprintf(w, "Send .%s\n", e.Msg)
		writeExpression(w, e.Receiver, depth+1)
		if e.Arg != nil {
			writeExpression(w, e.Arg, depth+1)
		}
	case *ast.FnCall:
		fmt.Fprintln(w, "FnCall")
		writeExpression(w, e.Callee, depth+1)
		for _, a := range e.Args {
			writeExpression(w, a, depth+1)
		}
	case *ast.FnLit:
		if e.Name != "" {
			fmt.Fprintf(w, "FnLit %s(%s)\n", e.Name, strings.Join(e.Params, ", "))
		} else {
			fmt.Fprintf(w, "FnLit(%s)\n", strings.Join(e.Params, ", "))
		}
		for _, st := range e.Body.Statements {
			writeStatement(w, st, depth+1)
		}
	default:
		fmt.Fprintf(w, "<unknown expression %T>\n", expr)
	}
}

// Bytecode writes prog's basic blocks and lexical scopes to w.
func Bytecode(w io.Writer, prog *bytecode.Program) {
	for _, b := range prog.Blocks {
		fmt.Fprintf(w, "block %d:\n", b.Index)
		for n, instr := range b.Instructions {
			fmt.Fprintf(w, "  %3d  %s\n", n, instruction(instr))
		}
	}
	for n, s := range prog.Scopes {
		fmt.Fprintf(w, "scope %d: [%d, %d] flags=%s global=%v continue=%d break=%d\n",
			n, s.Beginning, s.End, scopeFlags(s.Flags), s.IsGlobal, s.ContinueDest, s.BreakDest)
	}
}

func scopeFlags(f bytecode.ScopeFlags) string {
	var parts []string
	if f.Has(bytecode.CanBreak) {
		parts = append(parts, "break")
	}
	if f.Has(bytecode.CanContinue) {
		parts = append(parts, "continue")
	}
	if f.Has(bytecode.CanReturn) {
		parts = append(parts, "return")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

func instruction(instr bytecode.Instruction) string {
	switch i := instr.(type) {
	case *bytecode.Load:
		return fmt.Sprintf("load    r%d, %q", i.Dst, i.Name)
	case *bytecode.Store:
		return fmt.Sprintf("store   r%d[%q] = r%d, mutable=%v", i.Obj, i.Key, i.Src, i.Mutable)
	case *bytecode.Send:
		return fmt.Sprintf("send    r%d = r%d.%s%s", i.Dst, i.Obj, i.Msg, stamp(i.Stamp))
	case *bytecode.Jump:
		return fmt.Sprintf("jump    %d", i.Target)
	case *bytecode.JumpTrue:
		return fmt.Sprintf("jumpt   r%d, %d", i.Cond, i.Target)
	case *bytecode.JumpFalse:
		return fmt.Sprintf("jumpf   r%d, %d", i.Cond, i.Target)
	case *bytecode.JumpSaved:
		if i.HasRetval {
			return fmt.Sprintf("jumpsvd retval=r%d", i.Retval)
		}
		return "jumpsvd"
	default:
		return fmt.Sprintf("<unknown instruction %T>", instr)
	}
}

func stamp(s bytecode.Stamp) string {
	switch s.Kind {
	case bytecode.StampNone:
		return ""
	case bytecode.StampRegister:
		return fmt.Sprintf("(r%d)", s.Register)
	case bytecode.StampString:
		return fmt.Sprintf("(%q)", s.String)
	case bytecode.StampBlock:
		return fmt.Sprintf("(block %d)", s.Block)
	default:
		return "(?)"
	}
}

// Registers writes the contents of a VM's register file to w, one
// non-empty slot per line.
func Registers(w io.Writer, regs []*object.Store) {
	for i, s := range regs {
		if s == nil {
			continue
		}
		fmt.Fprintf(w, "r%-4d %s\n", i, storeValue(s.Value))
	}
}

func storeValue(v object.StoreValue) string {
	switch sv := v.(type) {
	case object.StoreObject:
		if sv.Object == nil {
			return "<nil object>"
		}
		return fmt.Sprintf("object#%08x type=%s", sv.Object.Hash, sv.Object.Type)
	case object.StoreLiteral:
		return fmt.Sprintf("literal %q", sv.Value)
	case object.StoreInt:
		return fmt.Sprintf("int %d", sv.Value)
	case object.StoreChar:
		return fmt.Sprintf("char %q", sv.Value)
	case object.StoreVec:
		return fmt.Sprintf("vec len=%d", len(sv.Values))
	case object.StoreRegister:
		return fmt.Sprintf("block %d", sv.Block)
	default:
		return fmt.Sprintf("<unknown store value %T>", v)
	}
}
