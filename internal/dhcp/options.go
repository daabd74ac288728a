package dhcp

import (
	"fmt"
	"net"
	"sort"

	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// Options is a map of DHCP option code to raw option data.
type Options map[dhcpv4.OptionCode][]byte

// DecodeOptions parses the options section of a DHCP packet.
// RFC 2132: options are TLV (type-length-value) encoded.
func DecodeOptions(data []byte) (Options, error) {
	opts := make(Options)
	i := 0
	for i < len(data) {
		code := dhcpv4.OptionCode(data[i])
		i++

		// Pad option (RFC 2132 §3.1)
		if code == dhcpv4.OptionPad {
			continue
		}

		// End option (RFC 2132 §3.2)
		if code == dhcpv4.OptionEnd {
			break
		}

		// TLV: need at least 1 byte for length
		if i >= len(data) {
			return nil, formatErrorf(ErrTruncatedOption, "option %d has no length byte", code)
		}

		length := int(data[i])
		i++

		if i+length > len(data) {
			return nil, formatErrorf(ErrTruncatedOption, "option %d needs %d bytes, have %d", code, length, len(data)-i)
		}

		value := make([]byte, length)
		copy(value, data[i:i+length])
		opts[code] = value
		i += length
	}

	return opts, nil
}

// Codes returns the option codes in wire order: message type first, then
// ascending. Pad and End are never included.
func (opts Options) Codes() []dhcpv4.OptionCode {
	codes := make([]dhcpv4.OptionCode, 0, len(opts))
	for code := range opts {
		if code == dhcpv4.OptionPad || code == dhcpv4.OptionEnd || code == dhcpv4.OptionDHCPMessageType {
			continue
		}
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	if _, ok := opts[dhcpv4.OptionDHCPMessageType]; ok {
		codes = append([]dhcpv4.OptionCode{dhcpv4.OptionDHCPMessageType}, codes...)
	}
	return codes
}

// EncodedLen returns the number of bytes Encode produces, end marker included.
func (opts Options) EncodedLen() int {
	size := 1
	for _, code := range opts.Codes() {
		size += 2 + len(opts[code])
	}
	return size
}

// Encode serializes options to bytes in Codes order, with end marker.
func (opts Options) Encode() ([]byte, error) {
	buf := make([]byte, 0, opts.EncodedLen())
	for _, code := range opts.Codes() {
		value := opts[code]
		if len(value) > dhcpv4.MaxOptionValueLen {
			return nil, fmt.Errorf("option %d value is %d bytes, maximum is %d", code, len(value), dhcpv4.MaxOptionValueLen)
		}
		buf = append(buf, byte(code))
		buf = append(buf, byte(len(value)))
		buf = append(buf, value...)
	}

	// End option
	buf = append(buf, byte(dhcpv4.OptionEnd))
	return buf, nil
}

// Get returns the raw value for an option code.
func (opts Options) Get(code dhcpv4.OptionCode) ([]byte, bool) {
	v, ok := opts[code]
	return v, ok
}

// Set sets an option to a raw value.
func (opts Options) Set(code dhcpv4.OptionCode, value []byte) {
	opts[code] = value
}

// SetMessageType sets option 53.
func (opts Options) SetMessageType(mt dhcpv4.MessageType) {
	opts[dhcpv4.OptionDHCPMessageType] = []byte{byte(mt)}
}

// SetIP sets a 4-byte address option. Non-IPv4 input is rejected.
func (opts Options) SetIP(code dhcpv4.OptionCode, ip net.IP) error {
	if ip == nil {
		return fmt.Errorf("option %d: missing address", code)
	}
	ip4, err := toIPv4(ip)
	if err != nil {
		return fmt.Errorf("option %d: %w", code, err)
	}
	opts[code] = copyIP(ip4)
	return nil
}

// SetCodes sets a list-of-codes option such as the parameter request list.
func (opts Options) SetCodes(code dhcpv4.OptionCode, codes []dhcpv4.OptionCode) {
	v := make([]byte, len(codes))
	for i, c := range codes {
		v[i] = byte(c)
	}
	opts[code] = v
}

// Has returns true if the option is present.
func (opts Options) Has(code dhcpv4.OptionCode) bool {
	_, ok := opts[code]
	return ok
}

// Delete removes an option.
func (opts Options) Delete(code dhcpv4.OptionCode) {
	delete(opts, code)
}

// Clone returns a deep copy of the options.
func (opts Options) Clone() Options {
	clone := make(Options, len(opts))
	for k, v := range opts {
		vc := make([]byte, len(v))
		copy(vc, v)
		clone[k] = vc
	}
	return clone
}
