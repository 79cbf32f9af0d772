// SPDX-License-Identifier: MIT
package decode

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

func decodeWAV(r io.ReadSeeker) (*pcm, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, &Error{Op: "parse", Err: fmt.Errorf("%w: not a valid WAV file", ErrUnsupportedFormat)}
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}

	bitDepth := int(decoder.BitDepth)
	channels := int(decoder.NumChans)
	if bitDepth == 0 || channels == 0 {
		return nil, &Error{Op: "parse", Err: fmt.Errorf("%w: %d bit, %d channels", ErrUnsupportedFormat, bitDepth, channels)}
	}

	samples := make([]float64, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned, centred on 128.
		for i, v := range buf.Data {
			samples[i] = float64(v-128) / 128
		}
	} else {
		factor := float64(int64(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			samples[i] = float64(v) / factor
		}
	}

	return &pcm{
		interleaved: samples,
		channels:    channels,
		sampleRate:  float64(decoder.SampleRate),
	}, nil
}
