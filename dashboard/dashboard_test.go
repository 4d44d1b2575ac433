package dashboard

import (
	"github.com/gdamore/tcell/v2"
	"github.com/jd3nn1s/seanboard"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func cellText(d *Dashboard, name string) string {
	row := 0
	for i, spec := range d.fields {
		if spec.Name == name {
			row = i + 1
		}
	}
	got := make(chan string, 1)
	d.app.QueueUpdate(func() {
		got <- d.table.GetCell(row, 1).Text
	})
	select {
	case s := <-got:
		return s
	case <-time.After(time.Second):
		return ""
	}
}

func TestDashboardPush(t *testing.T) {
	d := New(seanboard.NewTargetAddress("10.0.0.2"))
	screen := tcell.NewSimulationScreen("UTF-8")
	d.app.SetScreen(screen)

	done := make(chan error, 1)
	go func() {
		done <- d.Run()
	}()

	require.NoError(t, d.Push(seanboard.TelemetryRecord{
		FlywheelRPM:       4500,
		CompressorEnabled: true,
		UnixTime:          "1690000000",
	}))

	assert.Eventually(t, func() bool {
		return cellText(d, "flywheel_rpm") == "4500.00"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ON", cellText(d, "compressor_enabled"))
	assert.Equal(t, "OFF", cellText(d, "intake_alive"))
	assert.Equal(t, "1690000000", cellText(d, "unix_time"))

	d.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard did not stop")
	}

	err := d.Push(seanboard.TelemetryRecord{})
	assert.True(t, errors.Is(err, seanboard.ErrDisconnected))
	assert.Equal(t, "dashboard", d.Name())
}

func TestSetAddress(t *testing.T) {
	target := seanboard.NewTargetAddress("10.0.0.2")
	d := New(target)

	d.setAddress(" 10.0.0.3 ")
	assert.Equal(t, "10.0.0.3", target.Get())
	assert.Equal(t, "10.0.0.3", d.input.GetText())
	assert.Contains(t, d.status.GetText(true), "10.0.0.3")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "12.50", formatValue(seanboard.Number(12.5)))
	assert.Equal(t, "ON", formatValue(seanboard.Bool(true)))
	assert.Equal(t, "OFF", formatValue(seanboard.Bool(false)))
	assert.Equal(t, "abc", formatValue(seanboard.Text("abc")))
	assert.Equal(t, "", formatValue(seanboard.Value{}))
}
