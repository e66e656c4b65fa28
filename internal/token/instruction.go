package token

// Instruction is spec.md §3's "Assembler instruction": an opcode
// token plus up to four positional operand tokens and up to four
// per-operand ranked-type annotations, plus a result-type annotation.
// Only the annotations the opcode actually requires are populated.
//
// This generalizes the teacher's parsers.Instruction{Opcode string,
// Destination *PropertyRef, Arguments []interface{}} from a
// dynamically-typed argument list keyed by name to a fixed-arity,
// statically-typed operand tuple keyed by position — the shape
// spec.md §4.2's encoding demands.
type Instruction struct {
	Op Opcode

	// Dest is the destination slot, valid for every compute opcode
	// (see Opcode.IsCompute).
	Dest int

	// Operands holds up to four positional operand tokens.
	Operands [4]Token
	NumOperands int

	// OperandTypes holds up to four ranked-type annotations, one per
	// operand, populated only where the opcode requires one.
	OperandTypes [4]*Token

	// ResultType is the result ranked-type annotation, populated only
	// where the opcode requires one (e.g. "%3 = crt.add.f32! %1, %2
	// : f32").
	ResultType *Token
}

// NewInstruction builds an instruction with the given opcode,
// destination slot, and operands (at most four).
func NewInstruction(op Opcode, dest int, operands ...Token) *Instruction {
	inst := &Instruction{Op: op, Dest: dest}
	inst.NumOperands = len(operands)
	copy(inst.Operands[:], operands)
	return inst
}

// OperandSlots returns the slot numbers of every operand that is
// itself a slot reference, in positional order.
func (ins *Instruction) OperandSlots() []int {
	var slots []int
	for i := 0; i < ins.NumOperands; i++ {
		if ins.Operands[i].Kind == KindSlot {
			slots = append(slots, ins.Operands[i].Slot)
		}
	}
	return slots
}
