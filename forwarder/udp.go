package forwarder

import (
	"context"
	"fmt"
	"github.com/jd3nn1s/seanboard"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net"
	"time"
	"unsafe"
)

const DefaultInterval = 100 * time.Millisecond

var maxTelemetrySize = int(unsafe.Sizeof(Header{})+unsafe.Sizeof(Telemetry{})) + 256

type UDPConfig struct {
	Server string
	Port   int
}

// UDPForwarder sends the latest record as a datagram at most once per
// interval. Records pushed faster than that replace each other.
type UDPForwarder struct {
	Config   *UDPConfig
	Interval time.Duration

	conn    net.Conn
	fwdChan chan *seanboard.TelemetryRecord
}

func NewUDPForwarder(config UDPConfig) (*UDPForwarder, error) {
	udp := &UDPForwarder{
		Config:   &config,
		Interval: DefaultInterval,
		fwdChan:  make(chan *seanboard.TelemetryRecord, 1),
	}
	if err := udp.connect(); err != nil {
		return nil, err
	}
	return udp, nil
}

func (udp *UDPForwarder) Name() string {
	return "udp"
}

func (udp *UDPForwarder) Close() error {
	return udp.conn.Close()
}

func (udp *UDPForwarder) Push(rec seanboard.TelemetryRecord) error {
	for {
		select {
		case udp.fwdChan <- &rec:
			return nil
		default:
		}
		// replace the record that has not been sent yet
		select {
		case <-udp.fwdChan:
		default:
		}
	}
}

func (udp *UDPForwarder) Start(ctx context.Context) error {
	limiter := time.NewTicker(udp.Interval)
	defer limiter.Stop()
	for {
		select {
		case <-limiter.C:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case t := <-udp.fwdChan:
			if err := udp.forward(t); err != nil {
				log.WithField("err", err).Error("unable to forward telemetry to server")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (udp *UDPForwarder) forward(rec *seanboard.TelemetryRecord) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	_, err = udp.conn.Write(data)
	return err
}

func (udp *UDPForwarder) connect() error {
	writeBufSize := maxTelemetrySize * 2

	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d",
		udp.Config.Server,
		udp.Config.Port))
	if err != nil {
		return errors.Wrap(err, "unable to open udp socket")
	}
	udpConn := conn.(*net.UDPConn)
	if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
		return errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
	}

	udp.conn = conn
	return nil
}
