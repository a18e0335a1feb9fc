// Package asmdoc backs GET /api/asm/{opcode}, a documentation lookup
// spec.md §4.9/§6 marks "thin; out of core". It ships a small static
// table rather than any generated or scraped reference.
package asmdoc

import "strings"

// Doc is one opcode's documentation entry.
type Doc struct {
	Opcode  string `json:"opcode"`
	Summary string `json:"summary"`
	Tooltip string `json:"tooltip"`
	URL     string `json:"url,omitempty"`
}

var table = map[string]Doc{
	"mov":  {Opcode: "MOV", Summary: "Move", Tooltip: "Copies the second operand into the first."},
	"lea":  {Opcode: "LEA", Summary: "Load Effective Address", Tooltip: "Computes an address without dereferencing it."},
	"add":  {Opcode: "ADD", Summary: "Add", Tooltip: "Adds the second operand to the first."},
	"sub":  {Opcode: "SUB", Summary: "Subtract", Tooltip: "Subtracts the second operand from the first."},
	"jmp":  {Opcode: "JMP", Summary: "Jump", Tooltip: "Unconditional transfer of control."},
	"call": {Opcode: "CALL", Summary: "Call Procedure", Tooltip: "Pushes the return address and transfers control."},
	"ret":  {Opcode: "RET", Summary: "Return", Tooltip: "Pops the return address and transfers control back."},
	"push": {Opcode: "PUSH", Summary: "Push", Tooltip: "Decrements the stack pointer and stores the operand."},
	"pop":  {Opcode: "POP", Summary: "Pop", Tooltip: "Loads the operand from the stack and increments the pointer."},
	"cmp":  {Opcode: "CMP", Summary: "Compare", Tooltip: "Subtracts the operands and sets flags without storing."},
	"test": {Opcode: "TEST", Summary: "Logical Compare", Tooltip: "ANDs the operands and sets flags without storing."},
	"nop":  {Opcode: "NOP", Summary: "No Operation", Tooltip: "Does nothing."},
}

// Lookup returns the documentation entry for opcode, matched
// case-insensitively.
func Lookup(opcode string) (Doc, bool) {
	doc, ok := table[strings.ToLower(opcode)]
	return doc, ok
}
