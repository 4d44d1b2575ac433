// Package canbus publishes telemetry on a SocketCAN interface. A frame is
// only sent when its content differs from the last one sent for its ID.
package canbus

import (
	"context"
	"encoding/binary"
	"github.com/brutella/can"
	"github.com/jd3nn1s/seanboard"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"math"
	"sync"
)

const (
	frameFlywheel uint32 = 0x200
	frameVoltage         = 0x201
	frameStatus          = 0x202
	frameDrive           = 0x203
)

// status flag bits, first byte of frameStatus
const (
	flagCompressorEnabled uint8 = 1 << iota
	flagForwardSolenoid
	flagReverseSolenoid
	flagIntakeAlive
	flagIntakeState
)

type CANBus interface {
	SubscribeFunc(can.HandlerFunc)
	ConnectAndPublish() error
	Disconnect() error
	Publish(can.Frame) error
}

// to allow testing
var newBus = func(portName string) (CANBus, error) {
	return can.NewBusForInterfaceWithName(portName)
}

type Connection struct {
	bus CANBus

	mu     sync.Mutex
	sent   map[uint32][8]uint8
	closed bool
}

func Connect(portName string) (*Connection, error) {
	bus, err := newBus(portName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open can interface %s", portName)
	}

	c := &Connection{
		bus:  bus,
		sent: make(map[uint32][8]uint8),
	}
	return c, nil
}

// Start blocks reading the bus until ctx is done or the bus fails.
func (c *Connection) Start(ctx context.Context) error {
	c.bus.SubscribeFunc(c.handleFrame)
	log.Info("CAN bus opened and subscribed")

	stop := context.AfterFunc(ctx, func() {
		log.WithField("err", ctx.Err()).Info("stopping can bus")
		if err := c.Close(); err != nil {
			log.WithField("err", err).Warn("unable to disconnect canbus after context")
		}
	})
	defer stop()

	return c.bus.ConnectAndPublish()
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.bus.Disconnect()
}

func (c *Connection) Name() string {
	return "canbus"
}

func (c *Connection) Push(rec seanboard.TelemetryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Wrap(seanboard.ErrDisconnected, "can bus closed")
	}

	for _, f := range frames(&rec) {
		if prev, ok := c.sent[f.ID]; ok && prev == f.Data {
			continue
		}
		log.WithField("canID", f.ID).Debug("sending frame over canbus")
		if err := c.bus.Publish(f); err != nil {
			return errors.Wrapf(err, "unable to send frame %#x to CAN bus", f.ID)
		}
		c.sent[f.ID] = f.Data
	}
	return nil
}

func (c *Connection) handleFrame(frame can.Frame) {
	log.WithField("canID", frame.ID).
		WithField("length", frame.Length).
		Debug("received canbus frame")
}

func frames(rec *seanboard.TelemetryRecord) []can.Frame {
	var flywheel [8]uint8
	binary.LittleEndian.PutUint16(flywheel[0:2], clampUint16(rec.FlywheelRPM))
	binary.LittleEndian.PutUint16(flywheel[2:4], uint16(clampInt16(rec.FlywheelTemp*10)))

	var voltage [8]uint8
	for i, v := range []float64{
		rec.LeftFrontVoltage,
		rec.LeftBackVoltage,
		rec.RightFrontVoltage,
		rec.RightBackVoltage,
	} {
		binary.LittleEndian.PutUint16(voltage[i*2:i*2+2], clampUint16(v*100))
	}

	var status [8]uint8
	for flag, set := range map[uint8]bool{
		flagCompressorEnabled: rec.CompressorEnabled,
		flagForwardSolenoid:   rec.ForwardSolenoid,
		flagReverseSolenoid:   rec.ReverseSolenoid,
		flagIntakeAlive:       rec.IntakeAlive,
		flagIntakeState:       rec.IntakeState,
	} {
		if set {
			status[0] |= flag
		}
	}
	binary.LittleEndian.PutUint16(status[1:3], clampUint16(rec.CompressorCurrent*100))
	binary.LittleEndian.PutUint16(status[3:5], uint16(clampInt16(rec.IntakePower*1000)))

	var drive [8]uint8
	binary.LittleEndian.PutUint16(drive[0:2], uint16(clampInt16(rec.XSpeed*1000)))
	binary.LittleEndian.PutUint16(drive[2:4], uint16(clampInt16(rec.ZRotation*1000)))
	binary.LittleEndian.PutUint16(drive[4:6], uint16(clampInt16(rec.GyroTurnRate*10)))
	heading := math.Mod(rec.Rotation2D, 360)
	if heading < 0 {
		heading += 360
	}
	binary.LittleEndian.PutUint16(drive[6:8], clampUint16(heading*100))

	return []can.Frame{
		{ID: frameFlywheel, Length: 4, Data: flywheel},
		{ID: frameVoltage, Length: 8, Data: voltage},
		{ID: frameStatus, Length: 5, Data: status},
		{ID: frameDrive, Length: 8, Data: drive},
	}
}

func clampUint16(v float64) uint16 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}

func clampInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= math.MinInt16:
		return math.MinInt16
	case v >= math.MaxInt16:
		return math.MaxInt16
	}
	return int16(math.Round(v))
}

// Link is the Retryable form of a Connection. seanboard.Retry reopens the
// interface whenever it fails and pushes go to whichever connection is open.
type Link struct {
	portName string

	mu   sync.Mutex
	conn *Connection
}

func NewLink(portName string) *Link {
	return &Link{portName: portName}
}

func (l *Link) Open() error {
	c, err := Connect(l.portName)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = c
	l.mu.Unlock()
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	c := l.conn
	l.conn = nil
	l.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	c := l.conn
	l.mu.Unlock()
	if c == nil {
		return errors.New("can bus not connected")
	}
	return c.Start(ctx)
}

func (l *Link) Name() string {
	return "canbus:" + l.portName
}

// Push skips the record while the interface is being reopened so the link
// is never dropped from a fanout.
func (l *Link) Push(rec seanboard.TelemetryRecord) error {
	l.mu.Lock()
	c := l.conn
	l.mu.Unlock()
	if c == nil {
		log.WithField("interface", l.portName).Debug("can bus reconnecting, skipping record")
		return nil
	}
	err := c.Push(rec)
	if errors.Is(err, seanboard.ErrDisconnected) {
		log.WithField("interface", l.portName).Debug("can bus closed, skipping record")
		return nil
	}
	return err
}
