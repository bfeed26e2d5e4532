package wire

import "google.golang.org/protobuf/encoding/protowire"

// --- simple file operations ---

type PutReq struct{ File string }

func (m *PutReq) marshal() []byte {
	var b []byte
	return appendString(b, 1, m.File)
}

func unmarshalPutReq(b []byte) (*PutReq, error) {
	m := &PutReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			if err != nil {
				return 0, err
			}
			m.File = s
			return n, nil
		}
		return skipField(typ, rest)
	})
	return m, err
}

type PutData struct {
	Machine string
	File    string
	Offset  uint64
	Bytes   []byte
}

func (m *PutData) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Machine)
	b = appendString(b, 2, m.File)
	b = appendUint64(b, 3, m.Offset)
	b = appendBytes(b, 4, m.Bytes)
	return b
}

func unmarshalPutData(b []byte) (*PutData, error) {
	m := &PutData{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Machine, n, err = consumeString(typ, rest)
		case 2:
			m.File, n, err = consumeString(typ, rest)
		case 3:
			m.Offset, n, err = consumeVarint(typ, rest)
		case 4:
			m.Bytes, n, err = consumeBytes(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

type GetReq struct{ File string }

func (m *GetReq) marshal() []byte { return appendString(nil, 1, m.File) }

func unmarshalGetReq(b []byte) (*GetReq, error) {
	m := &GetReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.File = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

type GetData struct {
	Machine string
	File    string
	Offset  uint64
	Bytes   []byte
}

func (m *GetData) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Machine)
	b = appendString(b, 2, m.File)
	b = appendUint64(b, 3, m.Offset)
	b = appendBytes(b, 4, m.Bytes)
	return b
}

func unmarshalGetData(b []byte) (*GetData, error) {
	m := &GetData{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Machine, n, err = consumeString(typ, rest)
		case 2:
			m.File, n, err = consumeString(typ, rest)
		case 3:
			m.Offset, n, err = consumeVarint(typ, rest)
		case 4:
			m.Bytes, n, err = consumeBytes(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

type Delete struct{ File string }

func (m *Delete) marshal() []byte { return appendString(nil, 1, m.File) }

func unmarshalDelete(b []byte) (*Delete, error) {
	m := &Delete{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.File = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

type LsReq struct{ File string }

func (m *LsReq) marshal() []byte { return appendString(nil, 1, m.File) }

func unmarshalLsReq(b []byte) (*LsReq, error) {
	m := &LsReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.File = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

type LsRes struct{ Machines []string }

func (m *LsRes) marshal() []byte { return appendStrings(nil, 1, m.Machines) }

func unmarshalLsRes(b []byte) (*LsRes, error) {
	m := &LsRes{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			if err != nil {
				return 0, err
			}
			m.Machines = append(m.Machines, s)
			return n, nil
		}
		return skipField(typ, rest)
	})
	return m, err
}

type Ack struct{ Msg string }

func (m *Ack) marshal() []byte { return appendString(nil, 1, m.Msg) }

func unmarshalAck(b []byte) (*Ack, error) {
	m := &Ack{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.Msg = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

type Fail struct{ Msg string }

func (m *Fail) marshal() []byte { return appendString(nil, 1, m.Msg) }

func unmarshalFail(b []byte) (*Fail, error) {
	m := &Fail{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.Msg = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

// --- leader-driven replication ---

type LeaderPutReq struct {
	Machine string
	File    string
}

func (m *LeaderPutReq) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Machine)
	b = appendString(b, 2, m.File)
	return b
}

func unmarshalLeaderPutReq(b []byte) (*LeaderPutReq, error) {
	m := &LeaderPutReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Machine, n, err = consumeString(typ, rest)
		case 2:
			m.File, n, err = consumeString(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

type LeaderStoreReq struct{ Message string }

func (m *LeaderStoreReq) marshal() []byte { return appendString(nil, 1, m.Message) }

func unmarshalLeaderStoreReq(b []byte) (*LeaderStoreReq, error) {
	m := &LeaderStoreReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.Message = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

type LeaderStoreRes struct{ Files []string }

func (m *LeaderStoreRes) marshal() []byte { return appendStrings(nil, 1, m.Files) }

func unmarshalLeaderStoreRes(b []byte) (*LeaderStoreRes, error) {
	m := &LeaderStoreRes{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			if err != nil {
				return 0, err
			}
			m.Files = append(m.Files, s)
			return n, nil
		}
		return skipField(typ, rest)
	})
	return m, err
}

// --- fan-out read/write ---

type MultiRead struct {
	Local    string
	Sdfs     string
	LeaderIP string
}

func (m *MultiRead) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Local)
	b = appendString(b, 2, m.Sdfs)
	b = appendString(b, 3, m.LeaderIP)
	return b
}

func unmarshalMultiRead(b []byte) (*MultiRead, error) {
	m := &MultiRead{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Local, n, err = consumeString(typ, rest)
		case 2:
			m.Sdfs, n, err = consumeString(typ, rest)
		case 3:
			m.LeaderIP, n, err = consumeString(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

type MultiWrite struct {
	Local    string
	Sdfs     string
	LeaderIP string
}

func (m *MultiWrite) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Local)
	b = appendString(b, 2, m.Sdfs)
	b = appendString(b, 3, m.LeaderIP)
	return b
}

func unmarshalMultiWrite(b []byte) (*MultiWrite, error) {
	m := &MultiWrite{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Local, n, err = consumeString(typ, rest)
		case 2:
			m.Sdfs, n, err = consumeString(typ, rest)
		case 3:
			m.LeaderIP, n, err = consumeString(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

// --- map/reduce submission ---

type MapReq struct {
	Executable   string
	NumWorkers   uint32
	OutputPrefix string
	InputPrefix  string
	Args         []string
}

func (m *MapReq) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Executable)
	b = appendUint32(b, 2, m.NumWorkers)
	b = appendString(b, 3, m.OutputPrefix)
	b = appendString(b, 4, m.InputPrefix)
	b = appendStrings(b, 5, m.Args)
	return b
}

func unmarshalMapReq(b []byte) (*MapReq, error) {
	m := &MapReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Executable, n, err = consumeString(typ, rest)
		case 2:
			var v uint64
			v, n, err = consumeVarint(typ, rest)
			m.NumWorkers = uint32(v)
		case 3:
			m.OutputPrefix, n, err = consumeString(typ, rest)
		case 4:
			m.InputPrefix, n, err = consumeString(typ, rest)
		case 5:
			var s string
			s, n, err = consumeString(typ, rest)
			if err == nil {
				m.Args = append(m.Args, s)
			}
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

type ReduceReq struct {
	Executable  string
	NumWorkers  uint32
	InputPrefix string
	OutputFile  string
	DeleteAfter bool
}

func (m *ReduceReq) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Executable)
	b = appendUint32(b, 2, m.NumWorkers)
	b = appendString(b, 3, m.InputPrefix)
	b = appendString(b, 4, m.OutputFile)
	b = appendBool(b, 5, m.DeleteAfter)
	return b
}

func unmarshalReduceReq(b []byte) (*ReduceReq, error) {
	m := &ReduceReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Executable, n, err = consumeString(typ, rest)
		case 2:
			var v uint64
			v, n, err = consumeVarint(typ, rest)
			m.NumWorkers = uint32(v)
		case 3:
			m.InputPrefix, n, err = consumeString(typ, rest)
		case 4:
			m.OutputFile, n, err = consumeString(typ, rest)
		case 5:
			var v uint64
			v, n, err = consumeVarint(typ, rest)
			m.DeleteAfter = v != 0
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

// --- map dispatch to a worker ---

type LeaderMapReq struct {
	Executable    string
	OutputPrefix  string
	File          string
	ReplicaSet    []string
	TargetServers []string
	StartLine     uint32
	EndLine       uint32
	Args          []string
}

func (m *LeaderMapReq) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Executable)
	b = appendString(b, 2, m.OutputPrefix)
	b = appendString(b, 3, m.File)
	b = appendStrings(b, 4, m.ReplicaSet)
	b = appendStrings(b, 5, m.TargetServers)
	b = appendUint32(b, 6, m.StartLine)
	b = appendUint32(b, 7, m.EndLine)
	b = appendStrings(b, 8, m.Args)
	return b
}

func unmarshalLeaderMapReq(b []byte) (*LeaderMapReq, error) {
	m := &LeaderMapReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.Executable, n, err = consumeString(typ, rest)
		case 2:
			m.OutputPrefix, n, err = consumeString(typ, rest)
		case 3:
			m.File, n, err = consumeString(typ, rest)
		case 4:
			var s string
			s, n, err = consumeString(typ, rest)
			if err == nil {
				m.ReplicaSet = append(m.ReplicaSet, s)
			}
		case 5:
			var s string
			s, n, err = consumeString(typ, rest)
			if err == nil {
				m.TargetServers = append(m.TargetServers, s)
			}
		case 6:
			var v uint64
			v, n, err = consumeVarint(typ, rest)
			m.StartLine = uint32(v)
		case 7:
			var v uint64
			v, n, err = consumeVarint(typ, rest)
			m.EndLine = uint32(v)
		case 8:
			var s string
			s, n, err = consumeString(typ, rest)
			if err == nil {
				m.Args = append(m.Args, s)
			}
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

// --- worker -> output target append ---

type ServerMapReq struct {
	File string
	Data []byte
}

func (m *ServerMapReq) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.File)
	b = appendBytes(b, 2, m.Data)
	return b
}

func unmarshalServerMapReq(b []byte) (*ServerMapReq, error) {
	m := &ServerMapReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.File, n, err = consumeString(typ, rest)
		case 2:
			m.Data, n, err = consumeBytes(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

type ServerMapRes struct{ Keys []string }

func (m *ServerMapRes) marshal() []byte { return appendStrings(nil, 1, m.Keys) }

func unmarshalServerMapRes(b []byte) (*ServerMapRes, error) {
	m := &ServerMapRes{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			if err != nil {
				return 0, err
			}
			m.Keys = append(m.Keys, s)
			return n, nil
		}
		return skipField(typ, rest)
	})
	return m, err
}

type ServerReduceReq struct {
	File string
	Data []byte
}

func (m *ServerReduceReq) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.File)
	b = appendBytes(b, 2, m.Data)
	return b
}

func unmarshalServerReduceReq(b []byte) (*ServerReduceReq, error) {
	m := &ServerReduceReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			m.File, n, err = consumeString(typ, rest)
		case 2:
			m.Data, n, err = consumeBytes(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

// --- file size (line count) ---

type FileSizeReq struct{ File string }

func (m *FileSizeReq) marshal() []byte { return appendString(nil, 1, m.File) }

func unmarshalFileSizeReq(b []byte) (*FileSizeReq, error) {
	m := &FileSizeReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			s, n, err := consumeString(typ, rest)
			m.File = s
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

// Size is 32-bit: files with more than 2^32-1 lines are unsupported.
type FileSizeRes struct{ Size uint32 }

func (m *FileSizeRes) marshal() []byte { return appendUint32(nil, 1, m.Size) }

func unmarshalFileSizeRes(b []byte) (*FileSizeRes, error) {
	m := &FileSizeRes{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		if num == 1 {
			v, n, err := consumeVarint(typ, rest)
			m.Size = uint32(v)
			return n, err
		}
		return skipField(typ, rest)
	})
	return m, err
}

// --- reduce dispatch to a worker ---

// KeyServers is the replica list for one intermediate key, keyed by the
// key string in LeaderReduceReq.KeyServerMap.
type KeyServers struct{ Servers []string }

type LeaderReduceReq struct {
	KeyServerMap map[string]KeyServers
	TargetServer string
	OutputFile   string
	Executable   string
	InputPrefix  string
}

func (m *LeaderReduceReq) marshal() []byte {
	var b []byte
	for key, ks := range m.KeyServerMap {
		var entry []byte
		entry = appendString(entry, 1, key)
		entry = appendMessage(entry, 2, appendStrings(nil, 1, ks.Servers))
		b = appendMessage(b, 1, entry)
	}
	b = appendString(b, 2, m.TargetServer)
	b = appendString(b, 3, m.OutputFile)
	b = appendString(b, 4, m.Executable)
	b = appendString(b, 5, m.InputPrefix)
	return b
}

func unmarshalLeaderReduceReq(b []byte) (*LeaderReduceReq, error) {
	m := &LeaderReduceReq{KeyServerMap: map[string]KeyServers{}}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (n int, err error) {
		switch num {
		case 1:
			var entry []byte
			entry, n, err = consumeMessage(typ, rest)
			if err != nil {
				return n, err
			}
			var key string
			var servers []string
			ferr := walkFields(entry, func(enum protowire.Number, etyp protowire.Type, erest []byte) (en int, eerr error) {
				switch enum {
				case 1:
					key, en, eerr = consumeString(etyp, erest)
				case 2:
					var nested []byte
					nested, en, eerr = consumeMessage(etyp, erest)
					if eerr == nil {
						eerr = walkFields(nested, func(snum protowire.Number, styp protowire.Type, srest []byte) (sn int, serr error) {
							if snum == 1 {
								var s string
								s, sn, serr = consumeString(styp, srest)
								if serr == nil {
									servers = append(servers, s)
								}
								return sn, serr
							}
							return skipField(styp, srest)
						})
					}
				default:
					en, eerr = skipField(etyp, erest)
				}
				return en, eerr
			})
			if ferr != nil {
				return n, ferr
			}
			m.KeyServerMap[key] = KeyServers{Servers: servers}
		case 2:
			m.TargetServer, n, err = consumeString(typ, rest)
		case 3:
			m.OutputFile, n, err = consumeString(typ, rest)
		case 4:
			m.Executable, n, err = consumeString(typ, rest)
		case 5:
			m.InputPrefix, n, err = consumeString(typ, rest)
		default:
			n, err = skipField(typ, rest)
		}
		return n, err
	})
	return m, err
}

// skipField consumes and discards an unrecognized field so decoders stay
// forward-compatible with records carrying newer fields.
func skipField(typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(0, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
