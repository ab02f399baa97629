package peer

// ConnState is a peer connection's position in the lifecycle state machine
// (spec §4.8): DISCONNECTED -> CONNECTING -> HELLO_SENT ->
// COMPATIBLE (healthy) | REJECTED (epoch mismatch) -> DISCONNECTED.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateConnecting   ConnState = "CONNECTING"
	StateHelloSent    ConnState = "HELLO_SENT"
	StateCompatible   ConnState = "COMPATIBLE"
	StateRejected     ConnState = "REJECTED"
)

// connection tracks one remote node's handshake progress and the last
// advertised chain position it reported.
type connection struct {
	nodeID string
	state  ConnState

	advertisedLength uint64
	advertisedHash   string
	advertisedEpoch  uint64
	protocolVersion  int
}

func newConnection(nodeID string) *connection {
	return &connection{nodeID: nodeID, state: StateConnecting}
}
