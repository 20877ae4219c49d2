package resource

// Carrier is implemented by values that hold images while they move through
// a pipeline.
type Carrier interface {
	// Images returns every image handle the value holds, in a stable order.
	Images() []*Image

	// Map returns a copy of the value with every image replaced by fn(image).
	// The receiver is left untouched.
	Map(fn func(*Image) (*Image, error)) (Carrier, error)

	// Produced returns the images held in slots that input does not have or
	// holds a different handle in: the images a stage added or swapped in
	// when it turned input into this value.
	Produced(input Carrier) []*Image

	// Strip returns a copy of the value without any image slots.
	Strip() Carrier
}

// Lend returns a copy of c whose images are borrowed views.
func Lend(c Carrier) (Carrier, error) {
	return c.Map(func(img *Image) (*Image, error) { return img.Borrow() })
}
