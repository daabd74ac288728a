package dhcpv4

import "testing"

func TestMessageTypeString(t *testing.T) {
	tests := []struct {
		mt   MessageType
		want string
	}{
		{MessageTypeDiscover, "DHCPDISCOVER"},
		{MessageTypeOffer, "DHCPOFFER"},
		{MessageTypeRequest, "DHCPREQUEST"},
		{MessageTypeDecline, "DHCPDECLINE"},
		{MessageTypeAck, "DHCPACK"},
		{MessageTypeNak, "DHCPNAK"},
		{MessageTypeRelease, "DHCPRELEASE"},
		{MessageTypeInform, "DHCPINFORM"},
		{MessageType(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mt.String(); got != tt.want {
			t.Errorf("MessageType(%d).String() = %q, want %q", tt.mt, got, tt.want)
		}
	}
}

func TestMessageTypeValid(t *testing.T) {
	for mt := MessageTypeDiscover; mt <= MessageTypeInform; mt++ {
		if !mt.Valid() {
			t.Errorf("MessageType(%d).Valid() = false, want true", mt)
		}
	}
	for _, mt := range []MessageType{0, 9, 255} {
		if mt.Valid() {
			t.Errorf("MessageType(%d).Valid() = true, want false", mt)
		}
	}
}

func TestOptionCodeValues(t *testing.T) {
	// Verify key option codes match RFC 2132 values
	tests := []struct {
		code OptionCode
		want byte
	}{
		{OptionPad, 0},
		{OptionSubnetMask, 1},
		{OptionRouter, 3},
		{OptionDomainNameServer, 6},
		{OptionDomainName, 15},
		{OptionRequestedIP, 50},
		{OptionIPLeaseTime, 51},
		{OptionDHCPMessageType, 53},
		{OptionServerIdentifier, 54},
		{OptionParameterRequestList, 55},
		{OptionDomainSearch, 119},
		{OptionEnd, 255},
	}
	for _, tt := range tests {
		if byte(tt.code) != tt.want {
			t.Errorf("OptionCode %d: got %d, want %d", tt.code, byte(tt.code), tt.want)
		}
	}
}

func TestLayoutConstants(t *testing.T) {
	if HeaderSize != 236 {
		t.Errorf("HeaderSize = %d, want 236", HeaderSize)
	}
	if OptionsOffset != 240 {
		t.Errorf("OptionsOffset = %d, want 240", OptionsOffset)
	}
	if 4+4+4+16+CHAddrSize+SNameSize+FileSize != HeaderSize {
		t.Error("fixed fields do not add up to HeaderSize")
	}
	if ServerPort != 67 {
		t.Errorf("ServerPort = %d, want 67", ServerPort)
	}
	if ClientPort != 68 {
		t.Errorf("ClientPort = %d, want 68", ClientPort)
	}
}

func TestMagicCookie(t *testing.T) {
	expected := []byte{0x63, 0x82, 0x53, 0x63}
	if len(MagicCookie) != 4 {
		t.Fatalf("MagicCookie length = %d, want 4", len(MagicCookie))
	}
	for i, b := range MagicCookie {
		if b != expected[i] {
			t.Errorf("MagicCookie[%d] = %d, want %d", i, b, expected[i])
		}
	}
}

func TestDefaultParameterRequestList(t *testing.T) {
	want := []byte{1, 3, 6, 15}
	if len(DefaultParameterRequestList) != len(want) {
		t.Fatalf("len = %d, want %d", len(DefaultParameterRequestList), len(want))
	}
	for i, c := range DefaultParameterRequestList {
		if byte(c) != want[i] {
			t.Errorf("DefaultParameterRequestList[%d] = %d, want %d", i, c, want[i])
		}
	}
}
