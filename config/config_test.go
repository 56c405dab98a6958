package config

import "testing"

func validConfig() Config {
	return Config{
		MyID:       1,
		Members:    map[uint64]string{1: "localhost:7001", 2: "localhost:7002"},
		BufferSize: 4096,
		BlockSize:  256,
		WindowSize: 4,
		GMSPort:    7000,
		Type:       DissemLoopback,
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsMissingSelf(t *testing.T) {
	c := validConfig()
	c.MyID = 99
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for MyID absent from Members")
	}
}

func TestValidateRejectsBlockSizeLargerThanBuffer(t *testing.T) {
	c := validConfig()
	c.BlockSize = c.BufferSize + 1
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for BlockSize > BufferSize")
	}
}

func TestValidateRejectsZeroWindow(t *testing.T) {
	c := validConfig()
	c.WindowSize = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for WindowSize < 1")
	}
}

func TestValidateRejectsPortOutOfRange(t *testing.T) {
	c := validConfig()
	c.GMSPort = 70000
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for GMSPort out of range")
	}
}

func TestDissemTypeString(t *testing.T) {
	if got := DissemLoopback.String(); got != "loopback" {
		t.Fatalf("DissemLoopback.String() = %q, want %q", got, "loopback")
	}
	if got := DissemType(99).String(); got != "unknown" {
		t.Fatalf("DissemType(99).String() = %q, want %q", got, "unknown")
	}
}
