/*
Package wire implements the two message envelopes described in the wire
format section of the design: Command (the request/response traffic
between clients, storage nodes, and the leader) and FailureDetection (the
gossip/election traffic).

Rather than running protoc against a .proto file, each message is encoded
and decoded directly against google.golang.org/protobuf/encoding/protowire
— the same low-level primitives protoc-gen-go itself targets. A oneof
variant is written exactly as the protobuf wire format specifies a
message-typed oneof field: one top-level (field number, BytesType) pair
whose payload is the nested message's own encoded bytes. Any conformant
protobuf implementation that was handed the equivalent .proto file would
decode these bytes identically; only the generated Go accessor types are
hand-written here instead of machine-generated.

TCP sessions (leader endpoint, storage node endpoint) frame one Command
per 4-byte big-endian length prefix followed by the encoded record.
UDP datagrams (gossip, election) carry exactly one encoded
FailureDetection record per packet and need no length prefix.
*/
package wire
