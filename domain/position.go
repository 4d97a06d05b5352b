package domain

const (
	// PositionStep is the spacing between neighbouring cards.
	PositionStep = 1000
	// MinPosition is the position of the first card of a column.
	MinPosition = 1000
	// MaxPosition caps renumbered positions. Columns longer than
	// MaxPosition/PositionStep collapse their tail onto this value.
	MaxPosition = 1_000_000
)

// NextPosition returns the position of a task appended to a column whose
// highest stored position is highest. found is false for an empty column.
func NextPosition(highest int, found bool) int {
	if !found {
		return MinPosition
	}
	return highest + PositionStep
}

// SlotPosition returns the renumbered position for the card at index i of a
// column.
func SlotPosition(i int) int {
	p := (i + 1) * PositionStep
	if p > MaxPosition {
		return MaxPosition
	}
	return p
}

// ValidPosition reports whether p may be written by a bulk update.
func ValidPosition(p int) bool {
	return p >= MinPosition && p <= MaxPosition
}
