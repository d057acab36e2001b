package checkpoint

import "fmt"

// DiscrepancyKind classifies a mismatch between a payload and what the
// registered blocks expected.
type DiscrepancyKind int

// Kinds of integrity discrepancy.
const (
	// DiscrepancyMissingBlock means the payload ended before the block.
	DiscrepancyMissingBlock DiscrepancyKind = iota

	// DiscrepancyUnparsedBlock means the block rejected its data while the
	// stream itself was still usable.
	DiscrepancyUnparsedBlock

	// DiscrepancyTrailingData means bytes were left after the last block.
	DiscrepancyTrailingData
)

// Discrepancy is a non-fatal integrity problem found while reading a payload.
type Discrepancy struct {
	Kind      DiscrepancyKind
	Block     string
	Remaining int64
	Excerpt   string
	Err       error
}

func (d Discrepancy) String() string {
	switch d.Kind {
	case DiscrepancyMissingBlock:
		if d.Err != nil {
			return fmt.Sprintf("payload ended before block %q: %v", d.Block, d.Err)
		}

		return fmt.Sprintf("payload ended before block %q", d.Block)
	case DiscrepancyUnparsedBlock:
		return fmt.Sprintf("block %q could not be parsed: %v", d.Block, d.Err)
	default:
		return fmt.Sprintf(
			"not the whole checkpoint was read; %d bytes remaining: %q",
			d.Remaining, d.Excerpt)
	}
}

// ReadReport summarizes a completed read.
type ReadReport struct {
	Slot          int
	Path          string
	Compressed    bool
	Discrepancies []Discrepancy
}

// Clean tells whether the payload matched the registered blocks exactly.
func (r *ReadReport) Clean() bool {
	return len(r.Discrepancies) == 0
}

func (r *ReadReport) add(d Discrepancy) {
	r.Discrepancies = append(r.Discrepancies, d)
}
