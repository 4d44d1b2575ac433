package seanboard

// TablePrefix scopes which remote keys are eligible for extraction.
const TablePrefix = "/data/"

type TelemetryRecord struct {
	FlywheelRPM  float64 `json:"flywheel_rpm"`
	FlywheelTemp float64 `json:"flywheel_temp"`

	LeftPos  float64 `json:"left_pos"`
	RightPos float64 `json:"right_pos"`

	Rotation2D float64 `json:"rotation_2d"`

	// motor voltages
	LeftFrontVoltage  float64 `json:"left_front_voltage"`
	LeftBackVoltage   float64 `json:"left_back_voltage"`
	RightFrontVoltage float64 `json:"right_front_voltage"`
	RightBackVoltage  float64 `json:"right_back_voltage"`

	GyroTurnRate float64 `json:"gyro_turn_rate"`

	XSpeed    float64 `json:"x_speed"`
	ZRotation float64 `json:"z_rotation"`

	CompressorCurrent float64 `json:"compressor_current"`
	CompressorEnabled bool    `json:"compressor_enabled"`

	ForwardSolenoid bool `json:"forward_solenoid"`
	ReverseSolenoid bool `json:"reverse_solenoid"`

	IntakeAlive bool    `json:"intake_alive"`
	IntakePower float64 `json:"intake_power"`
	IntakeState bool    `json:"intake_state"`

	// unix time in ms, passed through untouched
	UnixTime string `json:"unix_time"`
}

// FieldSpec describes one record field: the key suffix looked up under the
// prefix, the kind it must hold and the value used when it does not.
type FieldSpec struct {
	Name    string
	Kind    Kind
	Default Value

	assign func(r *TelemetryRecord, v Value)
	read   func(r *TelemetryRecord) Value
}

func numberField(name string, field func(r *TelemetryRecord) *float64) FieldSpec {
	return FieldSpec{
		Name:    name,
		Kind:    KindNumber,
		Default: Number(0),
		assign: func(r *TelemetryRecord, v Value) {
			*field(r), _ = v.Number()
		},
		read: func(r *TelemetryRecord) Value {
			return Number(*field(r))
		},
	}
}

func boolField(name string, field func(r *TelemetryRecord) *bool) FieldSpec {
	return FieldSpec{
		Name:    name,
		Kind:    KindBool,
		Default: Bool(false),
		assign: func(r *TelemetryRecord, v Value) {
			*field(r), _ = v.Bool()
		},
		read: func(r *TelemetryRecord) Value {
			return Bool(*field(r))
		},
	}
}

func textField(name string, field func(r *TelemetryRecord) *string) FieldSpec {
	return FieldSpec{
		Name:    name,
		Kind:    KindText,
		Default: Text(""),
		assign: func(r *TelemetryRecord, v Value) {
			*field(r), _ = v.Text()
		},
		read: func(r *TelemetryRecord) Value {
			return Text(*field(r))
		},
	}
}

var fieldSpecs = []FieldSpec{
	numberField("flywheel_rpm", func(r *TelemetryRecord) *float64 { return &r.FlywheelRPM }),
	numberField("flywheel_temp", func(r *TelemetryRecord) *float64 { return &r.FlywheelTemp }),
	numberField("left_pos", func(r *TelemetryRecord) *float64 { return &r.LeftPos }),
	numberField("right_pos", func(r *TelemetryRecord) *float64 { return &r.RightPos }),
	numberField("rotation_2d", func(r *TelemetryRecord) *float64 { return &r.Rotation2D }),
	numberField("left_front_voltage", func(r *TelemetryRecord) *float64 { return &r.LeftFrontVoltage }),
	numberField("left_back_voltage", func(r *TelemetryRecord) *float64 { return &r.LeftBackVoltage }),
	numberField("right_front_voltage", func(r *TelemetryRecord) *float64 { return &r.RightFrontVoltage }),
	numberField("right_back_voltage", func(r *TelemetryRecord) *float64 { return &r.RightBackVoltage }),
	numberField("gyro_turn_rate", func(r *TelemetryRecord) *float64 { return &r.GyroTurnRate }),
	numberField("x_speed", func(r *TelemetryRecord) *float64 { return &r.XSpeed }),
	numberField("z_rotation", func(r *TelemetryRecord) *float64 { return &r.ZRotation }),
	numberField("compressor_current", func(r *TelemetryRecord) *float64 { return &r.CompressorCurrent }),
	boolField("compressor_enabled", func(r *TelemetryRecord) *bool { return &r.CompressorEnabled }),
	boolField("forward_solenoid", func(r *TelemetryRecord) *bool { return &r.ForwardSolenoid }),
	boolField("reverse_solenoid", func(r *TelemetryRecord) *bool { return &r.ReverseSolenoid }),
	boolField("intake_alive", func(r *TelemetryRecord) *bool { return &r.IntakeAlive }),
	numberField("intake_power", func(r *TelemetryRecord) *float64 { return &r.IntakePower }),
	boolField("intake_state", func(r *TelemetryRecord) *bool { return &r.IntakeState }),
	textField("unix_time", func(r *TelemetryRecord) *string { return &r.UnixTime }),
}

// Fields returns the fixed field table in record order.
func Fields() []FieldSpec {
	out := make([]FieldSpec, len(fieldSpecs))
	copy(out, fieldSpecs)
	return out
}

// Value returns the named field of the record.
func (r TelemetryRecord) Value(name string) (Value, bool) {
	for _, spec := range fieldSpecs {
		if spec.Name == name {
			return spec.read(&r), true
		}
	}
	return Value{}, false
}
