package reader

// GpioPin is an immutable snapshot of one GPIO line's id, level, and
// direction. Equality is componentwise.
type GpioPin struct {
	ID     int
	High   bool
	Output bool
}
