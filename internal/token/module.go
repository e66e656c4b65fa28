package token

// AnyDevice is the device-affinity sentinel meaning "no affinity"
// (spec.md §4.2/§6: device == 0xFF).
const AnyDevice = 0xFF

// Module is spec.md §3's Module: an optional device-affinity tag (a
// small unsigned integer selecting a physical executor, or "any") and
// an ordered sequence of instructions.
type Module struct {
	Device       uint8
	Instructions []*Instruction
}

// Program is spec.md §3's Program: an ordered sequence of modules.
type Program struct {
	Modules []*Module
}
