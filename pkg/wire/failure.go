package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// FailureDetection is the tagged union carried over the gossip (12307) and
// election (12308) UDP sockets: exactly one field is set per datagram.
type FailureDetection struct {
	MemberList  *MemberList
	Coordinator *Coordinator
	Election    *Election
	Ok          *Ok
}

const (
	tagMemberList  protowire.Number = 1
	tagCoordinator protowire.Number = 2
	tagElection    protowire.Number = 3
	tagOk          protowire.Number = 4
)

// Marshal encodes the set variant as a protobuf-wire-compatible record.
func (f *FailureDetection) Marshal() ([]byte, error) {
	switch {
	case f.MemberList != nil:
		return appendMessage(nil, tagMemberList, f.MemberList.marshal()), nil
	case f.Coordinator != nil:
		return appendMessage(nil, tagCoordinator, f.Coordinator.marshal()), nil
	case f.Election != nil:
		return appendMessage(nil, tagElection, f.Election.marshal()), nil
	case f.Ok != nil:
		return appendMessage(nil, tagOk, f.Ok.marshal()), nil
	default:
		return nil, fmt.Errorf("wire: FailureDetection has no variant set")
	}
}

// UnmarshalFailureDetection decodes a single FailureDetection record.
func UnmarshalFailureDetection(b []byte) (*FailureDetection, error) {
	var fd FailureDetection
	var found bool
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if found {
			return 0, fmt.Errorf("wire: FailureDetection has more than one variant set")
		}
		nested, n, err := consumeMessage(typ, rest)
		if err != nil {
			return 0, err
		}
		found = true
		switch num {
		case tagMemberList:
			fd.MemberList, err = unmarshalMemberList(nested)
		case tagCoordinator:
			fd.Coordinator, err = unmarshalCoordinator(nested)
		case tagElection:
			fd.Election, err = unmarshalElection(nested)
		case tagOk:
			fd.Ok, err = unmarshalOk(nested)
		default:
			return 0, fmt.Errorf("wire: unknown FailureDetection field %d", num)
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("wire: empty FailureDetection record")
	}
	return &fd, nil
}

// MemberEntry is one row of a gossiped membership digest: a non-failed
// local Node's identifier, heartbeat counter, and last-refresh time in
// RFC3339. Suspected/failed nodes are never gossiped.
type MemberEntry struct {
	Id        string
	Heartbeat uint64
	LastSeen  string
}

func (e *MemberEntry) marshal() []byte {
	var b []byte
	b = appendString(b, 1, e.Id)
	b = appendUint64(b, 2, e.Heartbeat)
	b = appendString(b, 3, e.LastSeen)
	return b
}

func unmarshalMemberEntry(b []byte) (*MemberEntry, error) {
	m := &MemberEntry{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Id, n, err = consumeString(typ, rest)
		case 2:
			m.Heartbeat, n, err = consumeVarint(typ, rest)
		case 3:
			m.LastSeen, n, err = consumeString(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

// MemberList is the gossip digest: the sender's own view of the cluster.
type MemberList struct {
	SenderId string
	Members  []*MemberEntry
}

func (m *MemberList) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.SenderId)
	for _, e := range m.Members {
		b = appendMessage(b, 2, e.marshal())
	}
	return b
}

func unmarshalMemberList(b []byte) (*MemberList, error) {
	m := &MemberList{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.SenderId, n, err = consumeString(typ, rest)
		case 2:
			var nested []byte
			nested, n, err = consumeMessage(typ, rest)
			if err != nil {
				return n, err
			}
			var entry *MemberEntry
			entry, err = unmarshalMemberEntry(nested)
			if err == nil {
				m.Members = append(m.Members, entry)
			}
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

// Coordinator announces the sender as the newly elected leader.
type Coordinator struct{ LeaderId string }

func (c *Coordinator) marshal() []byte { return appendString(nil, 1, c.LeaderId) }

func unmarshalCoordinator(b []byte) (*Coordinator, error) {
	m := &Coordinator{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.LeaderId = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

// Election is a bully challenge sent to every higher-priority peer.
type Election struct{ SenderId string }

func (e *Election) marshal() []byte { return appendString(nil, 1, e.SenderId) }

func unmarshalElection(b []byte) (*Election, error) {
	m := &Election{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.SenderId = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

// Ok answers an Election: "I outrank you, stand down."
type Ok struct{ SenderId string }

func (o *Ok) marshal() []byte { return appendString(nil, 1, o.SenderId) }

func unmarshalOk(b []byte) (*Ok, error) {
	m := &Ok{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.SenderId = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}
