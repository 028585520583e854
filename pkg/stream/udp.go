package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/tonewire/pkg/modem"
	"github.com/norasector/tonewire/pkg/protocol"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	receiveChannels = 8
	numSenders      = 2
)

// Field numbers of the wire record. Consumers may decode it with any
// protobuf library using the equivalent message definition.
const (
	fieldInstance protowire.Number = 1
	fieldProtocol protowire.Number = 2
	fieldFrame    protowire.Number = 3
	fieldPayload  protowire.Number = 4
	fieldTime     protowire.Number = 5
)

var ErrMalformed = errors.New("malformed packet")

type Destination struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// Packet is one decoded message as forwarded over UDP.
type Packet struct {
	Instance string
	Message  modem.Message
	Time     time.Time
}

// Marshal encodes p as a protobuf record.
func (p *Packet) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldInstance, protowire.BytesType)
	b = protowire.AppendString(b, p.Instance)
	b = protowire.AppendTag(b, fieldProtocol, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Message.Protocol))
	b = protowire.AppendTag(b, fieldFrame, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Message.Frame))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Message.Payload)
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Time.UnixNano()))
	return b
}

// Unmarshal decodes a record written by Marshal. Unknown fields are skipped.
func (p *Packet) Unmarshal(b []byte) error {
	*p = Packet{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldInstance && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("%w: instance: %v", ErrMalformed, protowire.ParseError(n))
			}
			p.Instance = v
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: payload: %v", ErrMalformed, protowire.ParseError(n))
			}
			p.Message.Payload = append([]byte(nil), v...)
			b = b[n:]
		case typ == protowire.VarintType && (num == fieldProtocol || num == fieldFrame || num == fieldTime):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			switch num {
			case fieldProtocol:
				p.Message.Protocol = protocol.ID(v)
			case fieldFrame:
				p.Message.Frame = int64(v)
			case fieldTime:
				p.Time = time.Unix(0, int64(v))
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// Frame prefixes the marshaled packet with its uint16 little-endian length.
func (p *Packet) Frame() ([]byte, error) {
	encoded := p.Marshal()
	if len(encoded) > 0xffff {
		return nil, fmt.Errorf("packet of %d bytes does not fit the length header", len(encoded))
	}

	var msgBuf bytes.Buffer
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

// ParseFrame reverses Frame.
func ParseFrame(b []byte) (*Packet, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: short header", ErrMalformed)
	}
	size := int(binary.LittleEndian.Uint16(b))
	if len(b)-2 < size {
		return nil, fmt.Errorf("%w: header says %d bytes, have %d", ErrMalformed, size, len(b)-2)
	}
	p := &Packet{}
	if err := p.Unmarshal(b[2 : 2+size]); err != nil {
		return nil, err
	}
	return p, nil
}

// UDPForwarder sends every received packet to all destinations.
type UDPForwarder struct {
	dests     []Destination
	recvChan  chan *Packet
	closeOnce sync.Once
	metrics   api.WriteAPI
}

// NewUDPForwarder returns a forwarder. metrics may be nil.
func NewUDPForwarder(dests []Destination, metrics api.WriteAPI) *UDPForwarder {
	return &UDPForwarder{
		dests:    dests,
		recvChan: make(chan *Packet, receiveChannels),
		metrics:  metrics,
	}
}

func (s *UDPForwarder) Receive() chan<- *Packet {
	return s.recvChan
}

// Close ends the input. Start returns nil once every queued packet is sent.
// Nothing may be sent to Receive afterwards.
func (s *UDPForwarder) Close() {
	s.closeOnce.Do(func() { close(s.recvChan) })
}

func (s *UDPForwarder) resolve() ([]*net.UDPAddr, error) {
	destAddrs := make([]*net.UDPAddr, 0, len(s.dests))
	for _, dest := range s.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		log.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("message forwarder starting")
	}
	return destAddrs, nil
}

// Start runs until Close is called or ctx is done. Packets already queued
// when ctx ends are still sent.
func (s *UDPForwarder) Start(ctx context.Context) error {
	destAddrs, err := s.resolve()
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)

	for i := 0; i < numSenders; i++ {
		eg.Go(func() error {
			conn, err := net.ListenUDP("udp", nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			for {
				select {
				case <-ctx.Done():
					s.drain(conn, destAddrs)
					return ctx.Err()
				case pkt, ok := <-s.recvChan:
					if !ok {
						return nil
					}
					s.send(conn, destAddrs, pkt)
				}
			}
		})
	}

	return eg.Wait()
}

// drain sends whatever is queued without waiting for more.
func (s *UDPForwarder) drain(conn *net.UDPConn, destAddrs []*net.UDPAddr) {
	for {
		select {
		case pkt, ok := <-s.recvChan:
			if !ok {
				return
			}
			s.send(conn, destAddrs, pkt)
		default:
			return
		}
	}
}

func (s *UDPForwarder) send(conn *net.UDPConn, destAddrs []*net.UDPAddr, pkt *Packet) {
	msg, err := pkt.Frame()
	if err != nil {
		log.Warn().Err(err).Msg("error framing message")
		return
	}

	sent := 1
	var bytesWritten int
	for _, destAddr := range destAddrs {
		n, err := conn.WriteToUDP(msg, destAddr)
		if err != nil {
			log.Error().Err(err).Msg("error writing")
			sent = 0
			continue
		}
		bytesWritten += n
	}

	if s.metrics == nil {
		return
	}
	s.metrics.WritePoint(influxdb2.NewPoint("tonewire.forwarded",
		map[string]string{
			"instance": pkt.Instance,
			"protocol": pkt.Message.Protocol.String(),
		},
		map[string]interface{}{
			"bytes_written":  bytesWritten,
			"payload_length": len(pkt.Message.Payload),
			"sent":           sent,
			"dropped":        1 - sent,
		}, time.Now()))
}
