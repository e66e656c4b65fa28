// Package asm implements the line-oriented textual syntax of spec.md
// §8's seed scenarios ("%3 = crt.add.f32! %1, %2 : f32") as a
// convenience assembler producing token.Program values for tests and
// the REPL, generalizing the teacher's cmd/gnd ParseInstruction —
// a char-by-char line tokenizer turning "opcode dest arg..." text into
// a parsers.Instruction{Opcode string, Arguments []interface{}} — into
// the fixed-arity, kind-tagged token.Instruction/token.Token shape.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/token"
)

// Assemble parses src, a newline-separated sequence of statements, into
// a Program. Statements may also be separated by ';' on one line, as
// in spec.md §8's scenario 2. Blank lines and lines starting with '#'
// are ignored.
func Assemble(src string) (*token.Program, error) {
	prog := &token.Program{}
	cur := &token.Module{Device: token.AnyDevice}
	flush := func() {
		prog.Modules = append(prog.Modules, cur)
		cur = &token.Module{Device: token.AnyDevice}
	}

	for lineNum, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if err := parseStatement(stmt, &cur, flush); err != nil {
				return nil, fmt.Errorf("asm: line %d: %w", lineNum+1, err)
			}
		}
	}
	flush()

	// Drop a trailing empty module produced by the final flush when
	// the source ended without one, unless it's the program's only
	// module (an empty program is still a valid, if useless, one).
	if n := len(prog.Modules); n > 1 && len(prog.Modules[n-1].Instructions) == 0 {
		prog.Modules = prog.Modules[:n-1]
	}
	return prog, nil
}

func parseStatement(stmt string, cur **token.Module, flush func()) error {
	low := strings.ToLower(stmt)
	switch {
	case strings.HasPrefix(low, "devat"):
		tagStr := strings.TrimSpace(stmt[len("devat"):])
		tag, err := parseDeviceTag(tagStr)
		if err != nil {
			return err
		}
		if len((*cur).Instructions) > 0 {
			flush()
		}
		(*cur).Device = tag
		return nil

	case low == "halt":
		(*cur).Instructions = append((*cur).Instructions, &token.Instruction{Op: token.HALT})
		return nil

	case low == "noop":
		(*cur).Instructions = append((*cur).Instructions, &token.Instruction{Op: token.NOOP})
		return nil

	case strings.HasPrefix(low, "return ") || strings.HasPrefix(low, "ret "):
		fields := strings.Fields(stmt)
		if len(fields) != 2 {
			return fmt.Errorf("return: expected exactly one operand, got %q", stmt)
		}
		slot, err := parseSlot(fields[1])
		if err != nil {
			return err
		}
		(*cur).Instructions = append((*cur).Instructions, &token.Instruction{
			Op: token.RETV, Operands: [4]token.Token{token.SlotToken(slot)}, NumOperands: 1,
		})
		return nil

	default:
		ins, err := parseAssignment(stmt)
		if err != nil {
			return err
		}
		(*cur).Instructions = append((*cur).Instructions, ins)
		return nil
	}
}

func parseDeviceTag(s string) (uint8, error) {
	if strings.EqualFold(s, "any") {
		return token.AnyDevice, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 254 {
		return 0, fmt.Errorf("devat: invalid device tag %q", s)
	}
	return uint8(n), nil
}

// parseAssignment parses "%<dest> = <rhs>".
func parseAssignment(stmt string) (*token.Instruction, error) {
	eq := strings.Index(stmt, "=")
	if eq < 0 {
		return nil, fmt.Errorf("expected '%%N = ...', got %q", stmt)
	}
	dest, err := parseSlot(strings.TrimSpace(stmt[:eq]))
	if err != nil {
		return nil, err
	}
	rhs := strings.TrimSpace(stmt[eq+1:])

	rhsBody, resultAnn, hasResult := cutLastTopLevelColon(rhs)
	rhsBody = strings.TrimSpace(rhsBody)

	var resultType *token.Token
	if hasResult {
		resultType, err = parseResultType(resultAnn)
		if err != nil {
			return nil, err
		}
	}

	op, operand, literal, err := parseRHSBody(rhsBody)
	if err != nil {
		return nil, err
	}
	if literal {
		if op == token.CONSTTENSOR && resultType != nil && resultType.DType == tensor.I32 {
			operand[0] = denseAsI32(operand[0])
		}
		return &token.Instruction{
			Op: op, Dest: dest,
			Operands: [4]token.Token{operand[0]}, NumOperands: 1,
			ResultType: resultType,
		}, nil
	}

	ins := &token.Instruction{Op: op, Dest: dest, ResultType: resultType}
	ins.NumOperands = len(operand)
	copy(ins.Operands[:], operand)
	return ins, nil
}

// cutLastTopLevelColon splits s on the last ':' that is not nested
// inside a bracket pair, used to separate "<rhs> : <resulttype>" from
// literal shorthands like "rng<uniform,[2,2]>" whose own syntax never
// needs a colon.
func cutLastTopLevelColon(s string) (body, ann string, ok bool) {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ']', '>':
			depth++
		case '[', '<':
			depth--
		case ':':
			if depth == 0 {
				return s[:i], strings.TrimSpace(s[i+1:]), true
			}
		}
	}
	return s, "", false
}

// parseRHSBody dispatches the three tensor-literal shorthands and the
// generic "mnemonic! arg, arg" opcode-call form.
func parseRHSBody(body string) (op token.Opcode, operands []token.Token, literal bool, err error) {
	switch {
	case strings.HasPrefix(body, "dense<"):
		tok, err := parseDense(trimWrap(body, "dense<", ">"))
		return token.CONSTTENSOR, []token.Token{tok}, true, err
	case strings.HasPrefix(body, "ones<"):
		tok, err := parseOnes(trimWrap(body, "ones<", ">"))
		return token.SVALUETENSOR, []token.Token{tok}, true, err
	case strings.HasPrefix(body, "svalue<"):
		tok, err := parseSValue(trimWrap(body, "svalue<", ">"))
		return token.SVALUETENSOR, []token.Token{tok}, true, err
	case strings.HasPrefix(body, "rng<"):
		tok, err := parseRNG(trimWrap(body, "rng<", ">"))
		return token.RNGTENSOR, []token.Token{tok}, true, err
	default:
		return parseOpCall(body)
	}
}

func trimWrap(s, prefix, suffix string) string {
	s = strings.TrimPrefix(s, prefix)
	s = strings.TrimSuffix(s, suffix)
	return s
}

// parseOpCall parses "mnemonic[!] [arg[, arg...]]".
func parseOpCall(body string) (token.Opcode, []token.Token, bool, error) {
	fields := strings.SplitN(body, " ", 2)
	mnem := strings.TrimSuffix(strings.TrimSpace(fields[0]), "!")
	op, ok := token.ParseMnemonic(mnem)
	if !ok {
		return 0, nil, false, fmt.Errorf("unknown mnemonic %q", mnem)
	}
	var argsStr string
	if len(fields) > 1 {
		argsStr = fields[1]
	}
	var operands []token.Token
	for _, arg := range splitTopLevel(argsStr, ',') {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		tok, err := parseOperand(arg)
		if err != nil {
			return 0, nil, false, err
		}
		operands = append(operands, tok)
	}
	return op, operands, false, nil
}

func parseOperand(arg string) (token.Token, error) {
	switch {
	case strings.HasPrefix(arg, "%"):
		slot, err := parseSlot(arg)
		if err != nil {
			return token.Token{}, err
		}
		return token.SlotToken(slot), nil
	case strings.HasPrefix(arg, "["):
		shape, err := parseIntList(strings.Trim(arg, "[]"))
		if err != nil {
			return token.Token{}, err
		}
		return token.ShapeToken(shape), nil
	case strings.ContainsAny(arg, ".eE") && !strings.HasPrefix(arg, "0x"):
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return token.Token{}, fmt.Errorf("invalid float operand %q: %w", arg, err)
		}
		return token.Float32Token(float32(v)), nil
	default:
		v, err := strconv.Atoi(arg)
		if err != nil {
			return token.Token{}, fmt.Errorf("invalid integer operand %q: %w", arg, err)
		}
		return token.Int32Token(int32(v)), nil
	}
}

func parseSlot(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "%") {
		return 0, fmt.Errorf("expected slot reference starting with '%%', got %q", s)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "%"))
	if err != nil {
		return 0, fmt.Errorf("invalid slot reference %q: %w", s, err)
	}
	return n, nil
}

func parseResultType(s string) (*token.Token, error) {
	s = strings.TrimSpace(s)
	shapeStr := ""
	if idx := strings.Index(s, "["); idx >= 0 {
		shapeStr = s[idx:]
		s = strings.TrimSpace(s[:idx])
	}
	dt, ok := tensor.ParseDTypeMnemonic(s)
	if !ok {
		return nil, fmt.Errorf("unknown result type %q", s)
	}
	var shape []int
	if shapeStr != "" {
		sh, err := parseIntList(strings.Trim(shapeStr, "[]"))
		if err != nil {
			return nil, err
		}
		shape = sh
	}
	rt := token.RankedTypeToken(dt, shape)
	return &rt, nil
}

// parseDense parses "[d1,d2,...], [s1,s2,...]".
func parseDense(body string) (token.Token, error) {
	groups := extractBrackets(body)
	if len(groups) != 2 {
		return token.Token{}, fmt.Errorf("dense literal: expected data and shape groups, got %q", body)
	}
	data, err := parseFloatList(groups[0])
	if err != nil {
		return token.Token{}, err
	}
	shape, err := parseIntList(groups[1])
	if err != nil {
		return token.Token{}, err
	}
	return token.DenseF32Token(data, shape), nil
}

// parseOnes parses "[s1,s2,...]" into a scalar-valued tensor filled
// with 1.
func parseOnes(body string) (token.Token, error) {
	groups := extractBrackets(body)
	if len(groups) != 1 {
		return token.Token{}, fmt.Errorf("ones literal: expected one shape group, got %q", body)
	}
	shape, err := parseIntList(groups[0])
	if err != nil {
		return token.Token{}, err
	}
	return token.SValueTensorToken(1, shape), nil
}

// parseSValue parses "[s1,s2,...], <value>".
func parseSValue(body string) (token.Token, error) {
	groups := extractBrackets(body)
	if len(groups) != 1 {
		return token.Token{}, fmt.Errorf("svalue literal: expected one shape group, got %q", body)
	}
	shape, err := parseIntList(groups[0])
	if err != nil {
		return token.Token{}, err
	}
	idx := strings.Index(body, "]")
	if idx < 0 {
		return token.Token{}, fmt.Errorf("svalue literal: missing shape group in %q", body)
	}
	rest := strings.Trim(body[idx+1:], ", ")
	val, err := strconv.ParseFloat(rest, 32)
	if err != nil {
		return token.Token{}, fmt.Errorf("svalue literal: invalid fill value %q: %w", rest, err)
	}
	return token.SValueTensorToken(float32(val), shape), nil
}

// parseRNG parses "<uniform|normal>, [s1,s2,...]".
func parseRNG(body string) (token.Token, error) {
	groups := extractBrackets(body)
	if len(groups) != 1 {
		return token.Token{}, fmt.Errorf("rng literal: expected one shape group, got %q", body)
	}
	shape, err := parseIntList(groups[0])
	if err != nil {
		return token.Token{}, err
	}
	idx := strings.Index(body, "[")
	if idx < 0 {
		return token.Token{}, fmt.Errorf("rng literal: missing shape group in %q", body)
	}
	distWord := strings.Trim(body[:idx], ", ")
	var dist tensor.Distribution
	switch strings.ToLower(distWord) {
	case "uniform":
		dist = tensor.Uniform
	case "normal":
		dist = tensor.Normal
	default:
		return token.Token{}, fmt.Errorf("rng literal: unknown distribution %q", distWord)
	}
	return token.RNGTensorToken(dist, shape), nil
}

// extractBrackets returns the raw contents of each top-level
// '[' ... ']' group in s, in order.
func extractBrackets(s string) []string {
	var out []string
	depth := 0
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '[':
			if depth == 0 {
				cur.Reset()
			}
			depth++
			if depth > 1 {
				cur.WriteByte(c)
			}
		case c == ']':
			depth--
			if depth == 0 {
				out = append(out, cur.String())
			} else if depth > 0 {
				cur.WriteByte(c)
			}
		case depth > 0:
			cur.WriteByte(c)
		}
	}
	return out
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside
// '[' ']' groups.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q in %q: %w", f, s, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// denseAsI32 reinterprets a dense-tensor token parsed as float32 data
// (the literal shorthand's default) as int32 data, for "dense<...> :
// i32" literals.
func denseAsI32(tok token.Token) token.Token {
	data := make([]int32, len(tok.DenseF32))
	for i, v := range tok.DenseF32 {
		data[i] = int32(v)
	}
	return token.DenseI32Token(data, tok.Shape)
}

func parseFloatList(s string) ([]float32, error) {
	var out []float32
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q in %q: %w", f, s, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}
