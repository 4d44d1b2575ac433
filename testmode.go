package seanboard

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"
)

// SimStore is an in-process Store that serves generated data, one step per
// session. It is used by test mode and needs no robot on the network.
type SimStore struct {
	mu   sync.Mutex
	tick int
	now  func() time.Time
}

func NewSimStore() *SimStore {
	return &SimStore{now: time.Now}
}

func (s *SimStore) Connect(ctx context.Context, address, identity string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tick++
	tick := s.tick
	s.mu.Unlock()
	return &simSession{entries: simEntries(tick, s.now())}, nil
}

type simSession struct {
	entries []Entry
}

func (s *simSession) Fetch(ctx context.Context) (KeyValueView, error) {
	return NewKeyValueView(s.entries), nil
}

func (s *simSession) Close() error {
	return nil
}

// triangle bounces between 0 and top, moving step per tick
func triangle(tick int, step, top float64) float64 {
	period := 2 * top / step
	pos := math.Mod(float64(tick), period) * step
	if pos > top {
		return 2*top - pos
	}
	return pos
}

func simEntries(tick int, now time.Time) []Entry {
	voltage := 12 - triangle(tick, 0.1, 2)
	entry := func(name string, v Value) Entry {
		return Entry{Name: TablePrefix + name, Value: v}
	}
	return []Entry{
		entry("flywheel_rpm", Number(triangle(tick, 100, 4500))),
		entry("flywheel_temp", Number(25+triangle(tick, 0.5, 30))),
		entry("left_pos", Number(float64(tick)*0.1)),
		entry("right_pos", Number(float64(tick)*0.1)),
		entry("rotation_2d", Number(math.Mod(float64(tick)*5, 360))),
		entry("left_front_voltage", Number(voltage)),
		entry("left_back_voltage", Number(voltage)),
		entry("right_front_voltage", Number(voltage)),
		entry("right_back_voltage", Number(voltage)),
		entry("gyro_turn_rate", Number(triangle(tick, 2, 90)-45)),
		entry("x_speed", Number(triangle(tick, 0.05, 1))),
		entry("z_rotation", Number(triangle(tick, 0.05, 1)-0.5)),
		entry("compressor_current", Number(triangle(tick, 0.2, 10))),
		entry("compressor_enabled", Bool(tick/25%2 == 0)),
		entry("forward_solenoid", Bool(tick/10%2 == 0)),
		entry("reverse_solenoid", Bool(tick/10%2 == 1)),
		entry("intake_alive", Bool(true)),
		entry("intake_power", Number(triangle(tick, 0.1, 1))),
		entry("intake_state", Bool(tick/40%2 == 0)),
		entry("unix_time", Text(strconv.FormatInt(now.UnixMilli(), 10))),
		{Name: "/SmartDashboard/battery", Value: Number(voltage)},
	}
}
