// Package name implements the 64-bit ISO 11783-5 NAME used to identify
// control functions during address claim.
package name

import (
	"encoding/binary"
	"fmt"
)

// NAME is the raw 64-bit NAME value. Lower values have higher address
// claim priority.
type NAME uint64

// Field layout, least significant bit first
const (
	identityNumberOffset      = 0
	identityNumberWidth       = 21
	manufacturerCodeOffset    = 21
	manufacturerCodeWidth     = 11
	ecuInstanceOffset         = 32
	ecuInstanceWidth          = 3
	functionInstanceOffset    = 35
	functionInstanceWidth     = 5
	functionCodeOffset        = 40
	functionCodeWidth         = 8
	deviceClassOffset         = 49
	deviceClassWidth          = 7
	deviceClassInstanceOffset = 56
	deviceClassInstanceWidth  = 4
	industryGroupOffset       = 60
	industryGroupWidth        = 3
	arbitraryAddressOffset    = 63
)

// Size is the number of bytes a NAME occupies in an address claim.
const Size = 8

// New wraps a raw NAME value.
func New(raw uint64) NAME {
	return NAME(raw)
}

// FromBytes decodes the little endian NAME carried in an address claim.
func FromBytes(b []byte) (NAME, error) {
	if len(b) < Size {
		return 0, fmt.Errorf("NAME needs %d bytes, got %d", Size, len(b))
	}
	return NAME(binary.LittleEndian.Uint64(b)), nil
}

// Bytes returns the little endian wire form.
func (n NAME) Bytes() []byte {
	b := make([]byte, Size)
	binary.LittleEndian.PutUint64(b, uint64(n))
	return b
}

// Raw returns the 64-bit value.
func (n NAME) Raw() uint64 {
	return uint64(n)
}

func (n NAME) field(offset, width uint) uint32 {
	return uint32((uint64(n) >> offset) & (1<<width - 1))
}

// set replaces only the bits of one field.
func (n *NAME) set(offset, width uint, value uint32) {
	mask := uint64(1<<width-1) << offset
	*n = NAME((uint64(*n) &^ mask) | (uint64(value)<<offset)&mask)
}

// IdentityNumber is usually the serial number of the ECU.
func (n NAME) IdentityNumber() uint32 {
	return n.field(identityNumberOffset, identityNumberWidth)
}

// SetIdentityNumber sets the 21-bit identity number.
func (n *NAME) SetIdentityNumber(v uint32) {
	n.set(identityNumberOffset, identityNumberWidth, v)
}

// ManufacturerCode is the J1939/ISO 11783 manufacturer code.
func (n NAME) ManufacturerCode() uint16 {
	return uint16(n.field(manufacturerCodeOffset, manufacturerCodeWidth))
}

// SetManufacturerCode sets the 11-bit manufacturer code.
func (n *NAME) SetManufacturerCode(v uint16) {
	n.set(manufacturerCodeOffset, manufacturerCodeWidth, uint32(v))
}

// ECUInstance returns the 3-bit ECU instance.
func (n NAME) ECUInstance() uint8 {
	return uint8(n.field(ecuInstanceOffset, ecuInstanceWidth))
}

// SetECUInstance sets the 3-bit ECU instance.
func (n *NAME) SetECUInstance(v uint8) {
	n.set(ecuInstanceOffset, ecuInstanceWidth, uint32(v))
}

// FunctionInstance returns the 5-bit function instance.
func (n NAME) FunctionInstance() uint8 {
	return uint8(n.field(functionInstanceOffset, functionInstanceWidth))
}

// SetFunctionInstance sets the 5-bit function instance.
func (n *NAME) SetFunctionInstance(v uint8) {
	n.set(functionInstanceOffset, functionInstanceWidth, uint32(v))
}

// FunctionCode returns the function code.
func (n NAME) FunctionCode() uint8 {
	return uint8(n.field(functionCodeOffset, functionCodeWidth))
}

// SetFunctionCode sets the function code.
func (n *NAME) SetFunctionCode(v uint8) {
	n.set(functionCodeOffset, functionCodeWidth, uint32(v))
}

// DeviceClass returns the 7-bit device class, the vehicle system in J1939.
func (n NAME) DeviceClass() uint8 {
	return uint8(n.field(deviceClassOffset, deviceClassWidth))
}

// SetDeviceClass sets the 7-bit device class.
func (n *NAME) SetDeviceClass(v uint8) {
	n.set(deviceClassOffset, deviceClassWidth, uint32(v))
}

// DeviceClassInstance returns the 4-bit device class instance.
func (n NAME) DeviceClassInstance() uint8 {
	return uint8(n.field(deviceClassInstanceOffset, deviceClassInstanceWidth))
}

// SetDeviceClassInstance sets the 4-bit device class instance.
func (n *NAME) SetDeviceClassInstance(v uint8) {
	n.set(deviceClassInstanceOffset, deviceClassInstanceWidth, uint32(v))
}

// IndustryGroup returns the 3-bit industry group (2 is agriculture).
func (n NAME) IndustryGroup() uint8 {
	return uint8(n.field(industryGroupOffset, industryGroupWidth))
}

// SetIndustryGroup sets the 3-bit industry group.
func (n *NAME) SetIndustryGroup(v uint8) {
	n.set(industryGroupOffset, industryGroupWidth, uint32(v))
}

// ArbitraryAddressCapable reports whether the device can move to any free
// address when it loses arbitration.
func (n NAME) ArbitraryAddressCapable() bool {
	return n.field(arbitraryAddressOffset, 1) == 1
}

// SetArbitraryAddressCapable sets the arbitrary address capable bit.
func (n *NAME) SetArbitraryAddressCapable(v bool) {
	var bit uint32
	if v {
		bit = 1
	}
	n.set(arbitraryAddressOffset, 1, bit)
}

// Get returns the value of one NAME component. Parameter Other returns 0.
func (n NAME) Get(p Parameter) uint32 {
	switch p {
	case IdentityNumber:
		return n.IdentityNumber()
	case ManufacturerCode:
		return uint32(n.ManufacturerCode())
	case ECUInstance:
		return uint32(n.ECUInstance())
	case FunctionInstance:
		return uint32(n.FunctionInstance())
	case FunctionCode:
		return uint32(n.FunctionCode())
	case DeviceClass:
		return uint32(n.DeviceClass())
	case DeviceClassInstance:
		return uint32(n.DeviceClassInstance())
	case IndustryGroup:
		return uint32(n.IndustryGroup())
	case ArbitraryAddressCapable:
		if n.ArbitraryAddressCapable() {
			return 1
		}
	}
	return 0
}

// String returns string representation of the NAME
func (n NAME) String() string {
	return fmt.Sprintf("NAME{0x%016X ID=%d MFG=%d FN=%s FI=%d ECU=%d DC=%d DCI=%d IG=%d AAC=%t}",
		uint64(n), n.IdentityNumber(), n.ManufacturerCode(), Function(n.FunctionCode()),
		n.FunctionInstance(), n.ECUInstance(), n.DeviceClass(), n.DeviceClassInstance(),
		n.IndustryGroup(), n.ArbitraryAddressCapable())
}
