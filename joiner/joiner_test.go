package joiner

import (
	"net"
	"reflect"
	"testing"
)

func TestSendViewReceiveViewRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	want := ViewPayload{
		VID:       3,
		MemberIDs: []uint32{1, 2, 4},
		Addresses: []string{"localhost:7001", "localhost:7002", "localhost:7004"},
		Failed:    []bool{false, true, false},
	}

	errc := make(chan error, 1)
	go func() { errc <- SendView(server, want) }()

	got, err := ReceiveView(client)
	if err != nil {
		t.Fatalf("ReceiveView: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendView: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReceiveView() = %+v, want %+v", got, want)
	}
}

func TestSendViewRejectsMismatchedSliceLengths(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	bad := ViewPayload{
		MemberIDs: []uint32{1, 2},
		Addresses: []string{"only-one"},
		Failed:    []bool{false, false},
	}
	if err := SendView(server, bad); err == nil {
		t.Fatalf("SendView() = nil, want error for mismatched slice lengths")
	}
}

func TestSendJoinRequestReceiveJoinRequestRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	errc := make(chan error, 1)
	go func() { errc <- SendJoinRequest(client, "localhost:7002") }()

	addr, err := ReceiveJoinRequest(server)
	if err != nil {
		t.Fatalf("ReceiveJoinRequest: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendJoinRequest: %v", err)
	}
	if addr != "localhost:7002" {
		t.Fatalf("ReceiveJoinRequest() = %q, want %q", addr, "localhost:7002")
	}
}
