// SPDX-License-Identifier: MIT
package decode

import (
	"fmt"

	"github.com/dh1tw/gosamplerate"
)

// Resample converts mono samples from one rate to another with
// libsamplerate's medium quality sinc converter.
func Resample(samples []float64, from, to float64) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %f -> %f", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}

	in := make([]float32, len(samples))
	for i, s := range samples {
		in[i] = float32(s)
	}

	out, err := gosamplerate.Simple(in, to/from, 1, gosamplerate.SRC_SINC_MEDIUM_QUALITY)
	if err != nil {
		return nil, err
	}

	resampled := make([]float64, len(out))
	for i, s := range out {
		resampled[i] = float64(s)
	}
	return resampled, nil
}
