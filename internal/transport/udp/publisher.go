// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"spectro/internal/log"
	"spectro/internal/observe"
	"spectro/internal/spectrogram"
)

const sinkUDP = "udp"

// HeaderSize is the fixed packet header length in bytes.
const HeaderSize = 4 + 8 + 2

// Sender transmits one packet. *UDPSender satisfies it.
type Sender interface {
	Send(data []byte) error
}

// UDPPublisher periodically reads the newest spectrogram row, packs it into
// a binary packet and sends it. A row is sent at most once.
type UDPPublisher struct {
	sender   Sender
	buffer   *spectrogram.Buffer
	interval time.Duration
	metrics  *observe.Metrics

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	lastSeq uint64

	// Reused on every tick.
	row          []float64
	f32Row       []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher for buffer. A non-positive interval
// defaults to 16ms (~60Hz); a nil metrics uses observe.DefaultMetrics().
func NewUDPPublisher(interval time.Duration, sender Sender, buffer *spectrogram.Buffer, metrics *observe.Metrics) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if buffer == nil {
		return nil, fmt.Errorf("UDPPublisher: spectrogram buffer cannot be nil")
	}
	if buffer.Bins() > 0xFFFF {
		return nil, fmt.Errorf("UDPPublisher: %d bins do not fit the count field", buffer.Bins())
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		log.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	log.Infof("UDPPublisher: Initializing (Interval: %s, Bins: %d)", interval, buffer.Bins())

	return &UDPPublisher{
		sender:       sender,
		buffer:       buffer,
		interval:     interval,
		metrics:      metrics,
		row:          make([]float64, buffer.Bins()),
		f32Row:       make([]float32, buffer.Bins()),
		packetBuffer: bytes.NewBuffer(make([]byte, 0, HeaderSize+4*buffer.Bins())),
	}, nil
}

// Start launches the publishing goroutine. Calling Start twice is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it to exit.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	log.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

// Run publishes until ctx is cancelled.
func (p *UDPPublisher) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	return p.Stop()
}

/*
UDP Packet Structure (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |   Bin Count   |       Magnitudes        |
|      (uint32)     |   (int64, unix ns)    |    (uint16)   |      (N * float32)      |
+-------------------+-----------------------+---------------+-------------------------+

The sequence number is the buffer write count of the row, truncated to 32
bits; receivers can detect gaps from it.
*/

// publish sends the newest row if it has not been sent yet and reports
// whether a packet went out.
func (p *UDPPublisher) publish() bool {
	seq, err := p.buffer.Latest(p.row)
	if err != nil {
		log.Errorf("UDPPublisher: Error reading latest row: %v", err)
		return false
	}
	if seq == 0 || seq == p.lastSeq {
		return false
	}
	p.lastSeq = seq

	packet, err := p.pack(uint32(seq), time.Now().UnixNano())
	if err != nil {
		log.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return false
	}

	ctx := context.Background()
	if err := p.sender.Send(packet); err != nil {
		p.metrics.RecordSinkSend(ctx, sinkUDP, "error")
		return false
	}
	p.metrics.RecordSinkSend(ctx, sinkUDP, "ok")
	log.Debugf("UDPPublisher: Sent packet %d (%d bytes)", seq, len(packet))
	return true
}

// pack encodes p.row into the reusable packet buffer.
func (p *UDPPublisher) pack(seq uint32, timestamp int64) ([]byte, error) {
	for i, v := range p.row {
		p.f32Row[i] = float32(v)
	}

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, seq)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(p.f32Row)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Row)
	}
	if err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

// Packet is a decoded UDP packet.
type Packet struct {
	Sequence   uint32
	Timestamp  int64
	Magnitudes []float32
}

// ErrShortPacket is returned by DecodePacket for truncated input.
var ErrShortPacket = errors.New("udp: short packet")

// DecodePacket parses a packet produced by UDPPublisher.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	pkt := Packet{
		Sequence:  binary.BigEndian.Uint32(data[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:12])),
	}
	count := int(binary.BigEndian.Uint16(data[12:14]))
	if len(data) < HeaderSize+4*count {
		return Packet{}, ErrShortPacket
	}
	pkt.Magnitudes = make([]float32, count)
	if err := binary.Read(bytes.NewReader(data[HeaderSize:]), binary.BigEndian, pkt.Magnitudes); err != nil {
		return Packet{}, err
	}
	return pkt, nil
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
