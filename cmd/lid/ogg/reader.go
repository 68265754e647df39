// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package ogg implements a reader for Ogg Opus files.
package ogg

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	pageHeaderLen       = 27
	idPagePayloadLength = 19
	// Comment headers may embed cover art.
	maxPacketSize = 1 << 24
)

var (
	errNilStream                 = errors.New("stream is nil")
	errBadIDPageSignature        = errors.New("bad header signature")
	errBadIDPageType             = errors.New("wrong header, expected beginning of stream")
	errBadIDPageLength           = errors.New("payload for id page must be 19 bytes")
	errBadIDPagePayloadSignature = errors.New("bad payload signature")
	errShortPageHeader           = errors.New("not enough data for payload header")
	errChecksumMismatch          = errors.New("expected and actual checksum do not match")
	errPacketTooLarge            = errors.New("packet exceeds maximum size")
)

// Reader reads Ogg pages and reassembles the Opus packets they carry.
type Reader struct {
	stream        io.Reader
	checksumTable *[256]uint32
	doChecksum    bool

	// packets completed from the current page, not yet returned.
	pending [][]byte
	// partial packet continuing on the next page.
	partial []byte
	eos     bool
}

// Header is the metadata from the ID page.
//
// https://tools.ietf.org/html/rfc7845.html#section-5.1
type Header struct {
	ChannelMap uint8
	Channels   uint8
	OutputGain uint16
	PreSkip    uint16
	SampleRate uint32
	Version    uint8
}

// PageHeader is the metadata for a Page.
//
// https://tools.ietf.org/html/rfc7845.html#section-1
type PageHeader struct {
	GranulePosition uint64

	sig           [4]byte
	version       uint8
	headerType    uint8
	serial        uint32
	index         uint32
	segmentsCount uint8
}

// NewReader returns a new Ogg reader and the Opus ID header. The comment
// header following it is skipped.
func NewReader(in io.Reader) (*Reader, *Header, error) {
	return newWith(in, true)
}

func newWith(in io.Reader, doChecksum bool) (*Reader, *Header, error) {
	if in == nil {
		return nil, nil, errNilStream
	}

	reader := &Reader{
		stream:        in,
		checksumTable: generateChecksumTable(),
		doChecksum:    doChecksum,
	}

	header, err := reader.readHeaders()
	if err != nil {
		return nil, nil, err
	}

	return reader, header, nil
}

func (o *Reader) readHeaders() (*Header, error) {
	payload, pageHeader, _, err := o.parseNextPage()
	if err != nil {
		return nil, err
	}

	header := &Header{}
	if string(pageHeader.sig[:]) != pageHeaderSignature {
		return nil, errBadIDPageSignature
	}

	if pageHeader.headerType != pageHeaderTypeBeginningOfStream {
		return nil, errBadIDPageType
	}

	if len(payload) != idPagePayloadLength {
		return nil, errBadIDPageLength
	}

	if s := string(payload[:8]); s != idPageSignature {
		return nil, errBadIDPagePayloadSignature
	}

	header.Version = payload[8]
	header.Channels = payload[9]
	header.PreSkip = binary.LittleEndian.Uint16(payload[10:12])
	header.SampleRate = binary.LittleEndian.Uint32(payload[12:16])
	header.OutputGain = binary.LittleEndian.Uint16(payload[16:18])
	header.ChannelMap = payload[18]

	// The comment header can span multiple pages. Some writers omit it, in
	// which case the packet is audio and is put back.
	pkt, err := o.NextPacket()
	if err != nil && err != io.EOF {
		return nil, err
	} else if err == nil && (len(pkt) < 8 || string(pkt[:8]) != commentPageSignature) {
		o.pending = append([][]byte{pkt}, o.pending...)
	}

	return header, nil
}

// NextPacket returns the next Opus packet. Packets spanning page boundaries
// are reassembled. It returns io.EOF once the stream is exhausted.
func (o *Reader) NextPacket() ([]byte, error) {
	for len(o.pending) == 0 {
		if o.eos {
			return nil, io.EOF
		}

		payload, pageHeader, sizes, err := o.parseNextPage()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			o.eos = true
			continue
		} else if err != nil {
			return nil, err
		}

		if pageHeader.headerType&pageHeaderTypeContinuedPacket == 0 {
			// A fresh page drops any dangling partial packet.
			o.partial = nil
		}

		var offset int
		for _, s := range sizes {
			o.partial = append(o.partial, payload[offset:offset+int(s)]...)
			offset += int(s)
			if len(o.partial) > maxPacketSize {
				return nil, errPacketTooLarge
			}
			// A lacing value below 255 terminates the packet.
			if s < 255 {
				o.pending = append(o.pending, o.partial)
				o.partial = nil
			}
		}

		if pageHeader.headerType&pageHeaderTypeEndOfStream != 0 {
			o.eos = true
		}
	}

	pkt := o.pending[0]
	o.pending = o.pending[1:]
	return pkt, nil
}

// parseNextPage reads from stream and returns the Ogg page payload, header
// and lacing values.
func (o *Reader) parseNextPage() ([]byte, *PageHeader, []byte, error) {
	h := make([]byte, pageHeaderLen)

	n, err := io.ReadFull(o.stream, h)
	if err != nil {
		return nil, nil, nil, err
	} else if n < len(h) {
		return nil, nil, nil, errShortPageHeader
	}

	pageHeader := &PageHeader{
		sig: [4]byte{h[0], h[1], h[2], h[3]},
	}
	if string(pageHeader.sig[:]) != pageHeaderSignature {
		return nil, nil, nil, errBadIDPageSignature
	}

	pageHeader.version = h[4]
	pageHeader.headerType = h[5]
	pageHeader.GranulePosition = binary.LittleEndian.Uint64(h[6 : 6+8])
	pageHeader.serial = binary.LittleEndian.Uint32(h[14 : 14+4])
	pageHeader.index = binary.LittleEndian.Uint32(h[18 : 18+4])
	pageHeader.segmentsCount = h[26]

	sizeBuffer := make([]byte, pageHeader.segmentsCount)
	if _, err = io.ReadFull(o.stream, sizeBuffer); err != nil {
		return nil, nil, nil, err
	}

	payloadSize := 0
	for _, s := range sizeBuffer {
		payloadSize += int(s)
	}

	payload := make([]byte, payloadSize)
	if _, err = io.ReadFull(o.stream, payload); err != nil {
		return nil, nil, nil, err
	}

	if o.doChecksum {
		if binary.LittleEndian.Uint32(h[22:22+4]) != o.checksum(h, sizeBuffer, payload) {
			return nil, nil, nil, errChecksumMismatch
		}
	}

	return payload, pageHeader, sizeBuffer, nil
}

func (o *Reader) checksum(h, sizes, payload []byte) uint32 {
	var checksum uint32
	updateChecksum := func(v byte) {
		checksum = (checksum << 8) ^ o.checksumTable[byte(checksum>>24)^v]
	}

	for index := range h {
		// Don't include expected checksum in our generation
		if index > 21 && index < 26 {
			updateChecksum(0)
			continue
		}

		updateChecksum(h[index])
	}
	for _, s := range sizes {
		updateChecksum(s)
	}
	for index := range payload {
		updateChecksum(payload[index])
	}

	return checksum
}
