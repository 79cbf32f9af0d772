// SPDX-License-Identifier: MIT
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always yields signed 16-bit little endian stereo.
const mp3Channels = 2

func decodeMP3(r io.ReadSeeker) (*pcm, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, &Error{Op: "parse", Err: fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)}
	}

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}

	nsamples := len(data) / 2
	samples := make([]float64, nsamples)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768
	}

	return &pcm{
		interleaved: samples,
		channels:    mp3Channels,
		sampleRate:  float64(decoder.SampleRate()),
	}, nil
}
