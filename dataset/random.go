package dataset

import (
	"fmt"
	"math/rand/v2"

	"github.com/dcshock/imgpipe/resource"
)

// RandomRecords creates n square images of the given size filled with random
// Rgba32 bytes, labelled label_0 .. label_<n-1>. The same seed yields the same
// pixels. Images are registered with tracker when it is non-nil.
func RandomRecords(n, size int, seed uint64, tracker *resource.Tracker) ([]Record, error) {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		pix := make([]byte, size*size*resource.BytesPerPixel)
		for j := range pix {
			pix[j] = byte(rng.UintN(256))
		}
		var img *resource.Image
		var err error
		if tracker != nil {
			img, err = tracker.Create(size, size, pix)
		} else {
			img, err = resource.New(size, size, pix)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Record{Image: img, Label: fmt.Sprintf("label_%d", i)})
	}
	return out, nil
}
