package cell

import "errors"

var (
	// ErrNoSlot is returned when a build slot index is out of range.
	ErrNoSlot = errors.New("cell: no such build slot")

	// ErrUnknownPiece is returned when no joint table entry exists for a piece.
	ErrUnknownPiece = errors.New("cell: unknown piece")
)
