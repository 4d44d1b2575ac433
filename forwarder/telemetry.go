package forwarder

import (
	"bytes"
	"encoding/binary"
	"github.com/jd3nn1s/seanboard"
	"github.com/pkg/errors"
	"io"
)

type Header struct {
	Type uint8
}

const (
	TypeTelemetry = 1
)

// flag bits in Telemetry.Flags
const (
	FlagCompressorEnabled uint8 = 1 << iota
	FlagForwardSolenoid
	FlagReverseSolenoid
	FlagIntakeAlive
	FlagIntakeState
)

// Telemetry is the fixed size part of a datagram. It is followed by the unix
// time string, prefixed by its length as a single byte.
type Telemetry struct {
	FlywheelRPM  float32
	FlywheelTemp float32

	LeftPos    float32
	RightPos   float32
	Rotation2D float32

	LeftFrontVoltage  float32
	LeftBackVoltage   float32
	RightFrontVoltage float32
	RightBackVoltage  float32

	GyroTurnRate float32
	XSpeed       float32
	ZRotation    float32

	CompressorCurrent float32
	IntakePower       float32

	Flags uint8
}

func packTelemetry(rec *seanboard.TelemetryRecord) Telemetry {
	t := Telemetry{
		FlywheelRPM:       float32(rec.FlywheelRPM),
		FlywheelTemp:      float32(rec.FlywheelTemp),
		LeftPos:           float32(rec.LeftPos),
		RightPos:          float32(rec.RightPos),
		Rotation2D:        float32(rec.Rotation2D),
		LeftFrontVoltage:  float32(rec.LeftFrontVoltage),
		LeftBackVoltage:   float32(rec.LeftBackVoltage),
		RightFrontVoltage: float32(rec.RightFrontVoltage),
		RightBackVoltage:  float32(rec.RightBackVoltage),
		GyroTurnRate:      float32(rec.GyroTurnRate),
		XSpeed:            float32(rec.XSpeed),
		ZRotation:         float32(rec.ZRotation),
		CompressorCurrent: float32(rec.CompressorCurrent),
		IntakePower:       float32(rec.IntakePower),
	}
	for flag, set := range map[uint8]bool{
		FlagCompressorEnabled: rec.CompressorEnabled,
		FlagForwardSolenoid:   rec.ForwardSolenoid,
		FlagReverseSolenoid:   rec.ReverseSolenoid,
		FlagIntakeAlive:       rec.IntakeAlive,
		FlagIntakeState:       rec.IntakeState,
	} {
		if set {
			t.Flags |= flag
		}
	}
	return t
}

// Encode builds a complete telemetry datagram.
func Encode(rec *seanboard.TelemetryRecord) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{})
	hdr := Header{
		Type: TypeTelemetry,
	}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "unable to write udp packet header")
	}
	t := packTelemetry(rec)
	if err := binary.Write(buf, binary.LittleEndian, &t); err != nil {
		return nil, errors.Wrap(err, "unable to write telemetry udp packet")
	}
	unixTime := rec.UnixTime
	if len(unixTime) > 255 {
		unixTime = unixTime[:255]
	}
	buf.WriteByte(uint8(len(unixTime)))
	buf.WriteString(unixTime)
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode. Values travel as float32 so decoded
// numbers lose precision.
func Decode(data []byte) (seanboard.TelemetryRecord, error) {
	rdr := bytes.NewReader(data)
	hdr := Header{}
	if err := binary.Read(rdr, binary.LittleEndian, &hdr); err != nil {
		return seanboard.TelemetryRecord{}, errors.Wrap(err, "unable to read header")
	}
	if hdr.Type != TypeTelemetry {
		return seanboard.TelemetryRecord{}, errors.Errorf("unexpected packet type %d", hdr.Type)
	}
	t := Telemetry{}
	if err := binary.Read(rdr, binary.LittleEndian, &t); err != nil {
		return seanboard.TelemetryRecord{}, errors.Wrap(err, "unable to read telemetry")
	}
	n, err := rdr.ReadByte()
	if err != nil {
		return seanboard.TelemetryRecord{}, errors.Wrap(err, "unable to read unix time length")
	}
	unixTime := make([]byte, n)
	if _, err := io.ReadFull(rdr, unixTime); err != nil {
		return seanboard.TelemetryRecord{}, errors.Wrap(err, "unable to read unix time")
	}

	return seanboard.TelemetryRecord{
		FlywheelRPM:       float64(t.FlywheelRPM),
		FlywheelTemp:      float64(t.FlywheelTemp),
		LeftPos:           float64(t.LeftPos),
		RightPos:          float64(t.RightPos),
		Rotation2D:        float64(t.Rotation2D),
		LeftFrontVoltage:  float64(t.LeftFrontVoltage),
		LeftBackVoltage:   float64(t.LeftBackVoltage),
		RightFrontVoltage: float64(t.RightFrontVoltage),
		RightBackVoltage:  float64(t.RightBackVoltage),
		GyroTurnRate:      float64(t.GyroTurnRate),
		XSpeed:            float64(t.XSpeed),
		ZRotation:         float64(t.ZRotation),
		CompressorCurrent: float64(t.CompressorCurrent),
		CompressorEnabled: t.Flags&FlagCompressorEnabled != 0,
		ForwardSolenoid:   t.Flags&FlagForwardSolenoid != 0,
		ReverseSolenoid:   t.Flags&FlagReverseSolenoid != 0,
		IntakeAlive:       t.Flags&FlagIntakeAlive != 0,
		IntakePower:       float64(t.IntakePower),
		IntakeState:       t.Flags&FlagIntakeState != 0,
		UnixTime:          string(unixTime),
	}, nil
}
