package mitsubishi

import (
	"github.com/ppiankov/cangate/internal/model"
	"github.com/ppiankov/cangate/internal/safety"
)

// Message layouts. All multi-byte fields are big-endian unless noted.
//
//	0x240 ACC_STATUS        bit 9 of bytes 4..7 read little-endian (byte 5, bit 1): cruise engaged
//	0x260 EPS torque        bytes 5..6 signed: torque reported by the steering motor
//	0x201 interceptor fb    bytes 0..1 and 2..3: the two pedal tracks
//	0x399 LKAS_COMMAND      bytes 0..1 signed torque, 2..3 signed angle (0.5 deg), byte 6 low nibble counter, byte 7 checksum
//	0x3B6 interceptor cmd   bytes 0..1 and 2..3: the two pedal track targets
//
// Checksummed messages carry the sum of the address bytes, the length and
// every payload byte except the last, truncated to 8 bits, in the last byte.

// CruiseEngaged decodes the cruise-engaged bit of ACC_STATUS.
func CruiseEngaged(f model.Frame) bool {
	return (f.Byte(5)>>1)&1 == 1
}

// EPSTorque decodes the measured steering torque scaled by factor percent.
func EPSTorque(f model.Frame, factor int) int {
	raw := int(int16(uint16(f.Byte(5))<<8 | uint16(f.Byte(6))))
	return raw * factor / 100
}

// InterceptorGas averages the two pedal tracks.
func InterceptorGas(f model.Frame) int {
	t1 := int(f.Byte(0))<<8 | int(f.Byte(1))
	t2 := int(f.Byte(2))<<8 | int(f.Byte(3))
	return (t1 + t2) / 2
}

// LKASTorque decodes the requested steering torque.
func LKASTorque(f model.Frame) int {
	return int(int16(uint16(f.Byte(0))<<8 | uint16(f.Byte(1))))
}

// Checksum computes the checksum of f over all bytes but the last.
func Checksum(f model.Frame) uint8 {
	sum := uint8(f.Addr) + uint8(f.Addr>>8) + f.Len
	for i := 0; i < int(f.Len)-1; i++ {
		sum += f.Data[i]
	}
	return sum
}

// ReceivedChecksum returns the checksum carried in the last byte.
func ReceivedChecksum(f model.Frame) uint8 {
	return safety.LastByteChecksum(f)
}

func seal(f model.Frame) model.Frame {
	f.Data[f.Len-1] = Checksum(f)
	return f
}

func frame8(bus uint8, addr uint32) model.Frame {
	return model.Frame{Bus: bus, Addr: addr, Len: 8}
}

// EncodeLKAS builds an LKAS_COMMAND on bus 0.
func EncodeLKAS(torque, angle int16, counter uint8) model.Frame {
	f := frame8(0, AddrLKASCommand)
	f.Data[0] = byte(uint16(torque) >> 8)
	f.Data[1] = byte(torque)
	f.Data[2] = byte(uint16(angle) >> 8)
	f.Data[3] = byte(angle)
	f.Data[6] = counter & 0x0F
	return seal(f)
}

// EncodeInterceptor builds an interceptor command with both tracks at gas.
func EncodeInterceptor(gas uint16) model.Frame {
	f := frame8(0, AddrInterceptorCommand)
	f.Data[0], f.Data[1] = byte(gas>>8), byte(gas)
	f.Data[2], f.Data[3] = byte(gas>>8), byte(gas)
	return seal(f)
}

// EncodeInterceptorFeedback builds the interceptor's report of both tracks.
func EncodeInterceptorFeedback(track1, track2 uint16) model.Frame {
	f := frame8(0, AddrInterceptorFeedback)
	f.Data[0], f.Data[1] = byte(track1>>8), byte(track1)
	f.Data[2], f.Data[3] = byte(track2>>8), byte(track2)
	return seal(f)
}

// EncodeACCStatus builds an ACC_STATUS frame.
func EncodeACCStatus(engaged bool) model.Frame {
	f := frame8(0, AddrACCStatus)
	if engaged {
		f.Data[5] = 1 << 1
	}
	return seal(f)
}

// EncodeEPSTorque builds an EPS torque report with a raw value.
func EncodeEPSTorque(raw int16) model.Frame {
	f := frame8(0, AddrEPSTorque)
	f.Data[5] = byte(uint16(raw) >> 8)
	f.Data[6] = byte(raw)
	return seal(f)
}
