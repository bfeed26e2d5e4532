package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// MaxRecordSize bounds a single framed record (16 MiB), generous enough for
// a PutData chunk while still rejecting a corrupt length prefix outright.
const MaxRecordSize = 16 << 20

// WriteCommand frames cmd as a 4-byte big-endian length prefix followed by
// its encoded bytes and writes it to w.
func WriteCommand(w io.Writer, cmd *Command) error {
	body, err := cmd.Marshal()
	if err != nil {
		return err
	}
	return writeFrame(w, body)
}

// ReadCommand reads one length-prefixed record from r and decodes it.
func ReadCommand(r io.Reader) (*Command, error) {
	body, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommand(body)
}

func writeFrame(w io.Writer, body []byte) error {
	if len(body) > MaxRecordSize {
		return fmt.Errorf("wire: record of %d bytes exceeds max frame size", len(body))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write record body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxRecordSize {
		return nil, fmt.Errorf("wire: record of %d bytes exceeds max frame size", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: read record body: %w", err)
	}
	return body, nil
}

// MaxDatagramSize bounds a single gossip/election UDP payload.
const MaxDatagramSize = 8192

// SendFailureDetection encodes fd and writes it as a single datagram to
// conn, which must already be connected or targeted via WriteTo semantics.
func SendFailureDetection(conn *net.UDPConn, addr *net.UDPAddr, fd *FailureDetection) error {
	body, err := fd.Marshal()
	if err != nil {
		return err
	}
	if len(body) > MaxDatagramSize {
		return fmt.Errorf("wire: datagram of %d bytes exceeds max size", len(body))
	}
	_, err = conn.WriteToUDP(body, addr)
	return err
}

// RecvFailureDetection blocks for the next datagram on conn and decodes it,
// returning the sender's address alongside the decoded message.
func RecvFailureDetection(conn *net.UDPConn) (*FailureDetection, *net.UDPAddr, error) {
	buf := make([]byte, MaxDatagramSize)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	fd, err := UnmarshalFailureDetection(buf[:n])
	if err != nil {
		return nil, addr, err
	}
	return fd, addr, nil
}
