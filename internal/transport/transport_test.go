package transport

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"spectro/internal/log"
	"spectro/internal/spectrogram"
	"spectro/pkg/utils"
)

func TestBroadcasterTick(t *testing.T) {
	buffer := spectrogram.New(4, 3)
	sink := &utils.MockTransport{}
	b := NewBroadcaster(buffer, sink, time.Millisecond)

	if b.Tick() {
		t.Fatal("Tick() sent before any push")
	}

	buffer.Push([]float64{1, 2, 3})
	if !b.Tick() {
		t.Fatal("Tick() did not send after a push")
	}
	if b.Tick() {
		t.Error("Tick() sent the same snapshot twice")
	}

	frame, ok := sink.LastData.(Frame)
	if !ok {
		t.Fatalf("sent %T, want Frame", sink.LastData)
	}
	if frame.Sequence != 1 || frame.Bins != 3 || len(frame.Rows) != 4 {
		t.Errorf("frame = seq %d, bins %d, rows %d", frame.Sequence, frame.Bins, len(frame.Rows))
	}
	if got := frame.Rows[3]; got[0] != 1 || got[2] != 3 {
		t.Errorf("newest row = %v, want [1 2 3]", got)
	}
	if sink.Count() != 1 {
		t.Errorf("Count() = %d, want 1", sink.Count())
	}
}

func TestBroadcasterRunClosesSink(t *testing.T) {
	buffer := spectrogram.New(4, 3)
	sink := &utils.MockTransport{}
	b := NewBroadcaster(buffer, sink, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	buffer.Push([]float64{1, 1, 1})
	deadline := time.Now().Add(2 * time.Second)
	for sink.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if sink.Count() == 0 {
		t.Error("Run() never sent a frame")
	}
	if !sink.Closed {
		t.Error("sink was not closed")
	}
}

func TestNewBroadcasterDefaultInterval(t *testing.T) {
	b := NewBroadcaster(spectrogram.New(2, 2), &utils.MockTransport{}, 0)
	if b.interval != 33*time.Millisecond {
		t.Errorf("interval = %s, want 33ms", b.interval)
	}
}

func TestLoggingTransport(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevLevel := log.Writer(), log.GetLevel()
	log.SetOutput(&buf)
	log.SetLevel(log.LevelDebug)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetLevel(prevLevel)
	})

	lt := NewLoggingTransport()
	frame := Frame{Sequence: 7, Rows: [][]float64{{0, 0, 0}, {0.1, 0.9, 0.2}}}
	if err := lt.Send(frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := lt.Send("not a frame"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(buf.String(), "Frame 7 peak bin 1") {
		t.Errorf("log output missing peak summary:\n%s", buf.String())
	}
}
