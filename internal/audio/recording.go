package audio

import (
	"fmt"
	"os"
	"sync/atomic"

	"spectro/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// StartRecording writes every captured block to filename as mono PCM at the
// configured bit depth until StopRecording.
func (e *Engine) StartRecording(filename string) error {
	if atomic.LoadInt32(&e.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	bitDepth := e.config.Recording.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	e.outputFile = file

	e.wavEncoder = wav.NewEncoder(file, int(e.config.Audio.SampleRate),
		bitDepth, 1, 1)

	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  int(e.config.Audio.SampleRate),
		},
		Data:           make([]int, e.config.Audio.BlockSize),
		SourceBitDepth: bitDepth,
	}
	e.sampleScale = float64(int64(1)<<(bitDepth-1) - 1)

	atomic.StoreInt32(&e.isRecording, 1)
	log.Infof("Audio: Recording input to %s (%d-bit)", filename, bitDepth)

	return nil
}

// writeRecording converts a float block to integer PCM and encodes it.
func (e *Engine) writeRecording(block []float32) {
	data := e.sampleBuf.Data[:cap(e.sampleBuf.Data)]
	n := min(len(block), len(data))
	for i := range n {
		s := float64(block[i])
		s = max(-1, min(s, 1))
		data[i] = int(s * e.sampleScale)
	}
	e.sampleBuf.Data = data[:n]

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		log.Errorf("Audio: Error writing to WAV file: %v", err)
	}
}

func (e *Engine) StopRecording() error {
	if atomic.LoadInt32(&e.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&e.isRecording, 0)

	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			return err
		}
		e.wavEncoder = nil
	}

	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			return err
		}
		e.outputFile = nil
	}

	return nil
}

// IsRecording reports whether captured blocks are being written to disk.
func (e *Engine) IsRecording() bool {
	return atomic.LoadInt32(&e.isRecording) == 1
}
