// Package dashboard is a terminal UI that shows the latest telemetry record
// and lets the operator change the robot address.
package dashboard

import (
	"fmt"
	"github.com/gdamore/tcell/v2"
	"github.com/jd3nn1s/seanboard"
	"github.com/pkg/errors"
	"github.com/rivo/tview"
	"strings"
	"sync"
	"sync/atomic"
)

type Dashboard struct {
	app    *tview.Application
	table  *tview.Table
	input  *tview.InputField
	status *tview.TextView
	target *seanboard.TargetAddress
	fields []seanboard.FieldSpec

	mu      sync.Mutex
	latest  seanboard.TelemetryRecord
	pushes  int
	stopped bool

	pending atomic.Bool
}

func New(target *seanboard.TargetAddress) *Dashboard {
	d := &Dashboard{
		app:    tview.NewApplication(),
		target: target,
		fields: seanboard.Fields(),
	}
	d.setupUI()
	return d
}

func (d *Dashboard) setupUI() {
	d.input = tview.NewInputField().
		SetLabel("Robot address: ").
		SetText(d.target.Get()).
		SetFieldWidth(30)
	d.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			d.setAddress(d.input.GetText())
		}
	})

	d.table = tview.NewTable().SetBorders(false)
	d.table.SetBorder(true).SetTitle(" Telemetry ")
	d.table.SetCell(0, 0, tview.NewTableCell("Field").
		SetSelectable(false).
		SetTextColor(tcell.ColorYellow))
	d.table.SetCell(0, 1, tview.NewTableCell("Value").
		SetSelectable(false).
		SetTextColor(tcell.ColorYellow))
	for i, spec := range d.fields {
		d.table.SetCell(i+1, 0, tview.NewTableCell(spec.Name).SetTextColor(tcell.ColorGreen))
		d.table.SetCell(i+1, 1, tview.NewTableCell(formatValue(spec.Default)).SetExpansion(1))
	}

	d.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	d.updateStatus()

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.input, 1, 0, true).
		AddItem(d.table, 0, 1, false).
		AddItem(d.status, 1, 0, false)

	d.app.SetRoot(flex, true)
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			d.app.Stop()
			return nil
		case tcell.KeyTab:
			if d.input.HasFocus() {
				d.app.SetFocus(d.table)
			} else {
				d.app.SetFocus(d.input)
			}
			return nil
		}
		return event
	})
}

// Run blocks until the UI is closed. Pushes after that report
// ErrDisconnected.
func (d *Dashboard) Run() error {
	err := d.app.Run()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return err
}

func (d *Dashboard) Stop() {
	d.app.Stop()
}

func (d *Dashboard) Name() string {
	return "dashboard"
}

func (d *Dashboard) Push(rec seanboard.TelemetryRecord) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return errors.Wrap(seanboard.ErrDisconnected, "dashboard closed")
	}
	d.latest = rec
	d.pushes++
	d.mu.Unlock()

	// one queued redraw at a time, it always renders the latest record
	if d.pending.CompareAndSwap(false, true) {
		d.app.QueueUpdateDraw(func() {
			d.pending.Store(false)
			d.render()
		})
	}
	return nil
}

func (d *Dashboard) setAddress(text string) {
	addr := strings.TrimSpace(text)
	d.target.Set(addr)
	d.input.SetText(addr)
	d.updateStatus()
}

func (d *Dashboard) render() {
	d.mu.Lock()
	rec := d.latest
	d.mu.Unlock()

	for i, spec := range d.fields {
		v, _ := rec.Value(spec.Name)
		d.table.GetCell(i+1, 1).SetText(formatValue(v))
	}
	d.updateStatus()
}

func (d *Dashboard) updateStatus() {
	d.mu.Lock()
	unixTime, pushes := d.latest.UnixTime, d.pushes
	d.mu.Unlock()

	d.status.Clear()
	fmt.Fprintf(d.status, "target [yellow]%s[white] | updates %d | robot time %s | Esc to quit",
		d.target.Get(), pushes, unixTime)
}

func formatValue(v seanboard.Value) string {
	switch v.Kind() {
	case seanboard.KindNumber:
		n, _ := v.Number()
		return fmt.Sprintf("%.2f", n)
	case seanboard.KindBool:
		if b, _ := v.Bool(); b {
			return "ON"
		}
		return "OFF"
	case seanboard.KindText:
		s, _ := v.Text()
		return s
	}
	return ""
}
