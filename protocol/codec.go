package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"myproto-go/crc"
)

// Encode serializes msg into a complete frame: head plus body, with
// Len and Crc computed and written in. The caller is expected to have
// already set Version, Server, Sequence and Type; Len and Crc are
// always recomputed here regardless of what the caller put in Head.
func Encode(msg *Message) ([]byte, error) {
	body := []byte(msg.Body)
	total := HeadSize + len(body)
	if total > MaxFrameLen {
		return nil, fmt.Errorf("protocol: frame too large: %d bytes", total)
	}

	buf := make([]byte, total)
	writeHead(buf, &msg.Head, uint32(total))
	copy(buf[HeadSize:], body)

	sum := crc.Checksum(buf)
	binary.LittleEndian.PutUint16(buf[7:9], sum)

	return buf, nil
}

func writeHead(buf []byte, h *Head, length uint32) {
	buf[0] = h.Version
	binary.LittleEndian.PutUint16(buf[1:3], h.Server)
	binary.LittleEndian.PutUint32(buf[3:7], length)
	binary.LittleEndian.PutUint16(buf[7:9], 0) // crc zeroed until computed
	binary.LittleEndian.PutUint32(buf[9:13], h.Sequence)
	buf[13] = byte(h.Type)
}

func readHead(buf []byte) Head {
	return Head{
		Version:  buf[0],
		Server:   binary.LittleEndian.Uint16(buf[1:3]),
		Len:      binary.LittleEndian.Uint32(buf[3:7]),
		Crc:      binary.LittleEndian.Uint16(buf[7:9]),
		Sequence: binary.LittleEndian.Uint32(buf[9:13]),
		Type:     MsgType(buf[13]),
	}
}

type decoderState int

const (
	stateHead decoderState = iota
	stateBody
)

// Decoder is a restartable frame parser that tolerates arbitrary TCP
// read boundaries. Feed appends whatever bytes just arrived and parses
// as many whole frames as it can; anything left over is held in acc
// for the next call. A fatal error from Feed means the stream is no
// longer trustworthy and the connection should be dropped — the
// decoder does not attempt to resynchronize.
type Decoder struct {
	state   decoderState
	acc     []byte
	curHead Head
	queue   []*Message
}

// NewDecoder returns a Decoder ready to parse a fresh byte stream.
func NewDecoder() *Decoder {
	return &Decoder{state: stateHead}
}

// Feed appends data to the internal accumulator and drains as many
// complete frames as are now available into the decoder's queue.
func (d *Decoder) Feed(data []byte) error {
	d.acc = append(d.acc, data...)

	for {
		switch d.state {
		case stateHead:
			if len(d.acc) < HeadSize {
				return nil
			}
			h := readHead(d.acc[:HeadSize])
			if !validLen(h.Len) {
				return fmt.Errorf("protocol: invalid frame length %d", h.Len)
			}
			d.curHead = h
			d.state = stateBody

		case stateBody:
			total := int(d.curHead.Len)
			if len(d.acc) < total {
				return nil
			}
			frame := d.acc[:total]
			gotCrc := d.curHead.Crc

			verifyBuf := make([]byte, total)
			copy(verifyBuf, frame)
			binary.LittleEndian.PutUint16(verifyBuf[7:9], 0)
			if crc.Checksum(verifyBuf) != gotCrc {
				return fmt.Errorf("protocol: crc mismatch")
			}

			body := frame[HeadSize:total]
			var raw json.RawMessage
			if len(body) > 0 {
				if !json.Valid(body) {
					return fmt.Errorf("protocol: invalid json body")
				}
				raw = json.RawMessage(append([]byte(nil), body...))
			}

			d.queue = append(d.queue, &Message{Head: d.curHead, Body: raw})

			d.acc = d.acc[total:]
			d.state = stateHead
		}
	}
}

// Front returns the oldest completed message without removing it.
func (d *Decoder) Front() (*Message, bool) {
	if len(d.queue) == 0 {
		return nil, false
	}
	return d.queue[0], true
}

// Pop removes the oldest completed message.
func (d *Decoder) Pop() {
	if len(d.queue) == 0 {
		return
	}
	d.queue = d.queue[1:]
}

// Empty reports whether the completed-message queue is empty.
func (d *Decoder) Empty() bool {
	return len(d.queue) == 0
}
