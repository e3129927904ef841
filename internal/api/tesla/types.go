package tesla

import "time"

// Vehicle 车辆基础信息
type Vehicle struct {
	ID          int64  `json:"id"`
	VehicleID   int64  `json:"vehicle_id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"` // online, asleep, offline
	InService   bool   `json:"in_service"`
	Color       string `json:"color,omitempty"`
}

// VehicleData 车辆完整数据
type VehicleData struct {
	ID           int64         `json:"id"`
	VehicleID    int64         `json:"vehicle_id"`
	VIN          string        `json:"vin"`
	DisplayName  string        `json:"display_name"`
	State        string        `json:"state"`
	ChargeState  *ChargeState  `json:"charge_state,omitempty"`
	ClimateState *ClimateState `json:"climate_state,omitempty"`
	VehicleState *VehicleState `json:"vehicle_state,omitempty"`
}

// ChargeState 充电状态
type ChargeState struct {
	BatteryLevel       int     `json:"battery_level"`
	BatteryRange       float64 `json:"battery_range"` // 英里
	ChargeLimitSoc     int     `json:"charge_limit_soc"`
	ChargePortDoorOpen bool    `json:"charge_port_door_open"`
	ChargingState      string  `json:"charging_state"` // Disconnected, Stopped, Charging, Complete
	Timestamp          int64   `json:"timestamp"`
}

// ClimateState 空调状态
type ClimateState struct {
	InsideTemp           float64 `json:"inside_temp"`  // 摄氏度
	OutsideTemp          float64 `json:"outside_temp"` // 摄氏度
	IsAutoConditioningOn bool    `json:"is_auto_conditioning_on"`
	IsClimateOn          bool    `json:"is_climate_on"`
	Timestamp            int64   `json:"timestamp"`
}

// VehicleState 车辆状态
type VehicleState struct {
	Odometer            float64 `json:"odometer"` // 英里
	Locked              bool    `json:"locked"`
	SentryMode          bool    `json:"sentry_mode"`
	FrunkOpen           int     `json:"ft"` // front trunk
	TrunkOpen           int     `json:"rt"` // rear trunk
	DriverWindowOpen    int     `json:"fd_window"`
	PassengerWindowOpen int     `json:"fp_window"`
	VehicleName         string  `json:"vehicle_name"`
	Timestamp           int64   `json:"timestamp"`
}

// Summary 车辆数据摘要
type Summary struct {
	VIN          string    `json:"vin"`
	State        string    `json:"state"`
	BatteryLevel *int      `json:"battery_level,omitempty"`
	RangeKm      *float64  `json:"range_km,omitempty"`
	Locked       *bool     `json:"locked,omitempty"`
	ClimateOn    *bool     `json:"climate_on,omitempty"`
	InsideTemp   *float64  `json:"inside_temp,omitempty"`
	OdometerKm   *float64  `json:"odometer_km,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary 提取常用字段
func (d *VehicleData) Summary() Summary {
	s := Summary{VIN: d.VIN, State: d.State}
	var ts int64
	if cs := d.ChargeState; cs != nil {
		level := cs.BatteryLevel
		km := MilesToKm(cs.BatteryRange)
		s.BatteryLevel = &level
		s.RangeKm = &km
		ts = max(ts, cs.Timestamp)
	}
	if cl := d.ClimateState; cl != nil {
		on := cl.IsClimateOn
		temp := cl.InsideTemp
		s.ClimateOn = &on
		s.InsideTemp = &temp
		ts = max(ts, cl.Timestamp)
	}
	if vs := d.VehicleState; vs != nil {
		locked := vs.Locked
		odo := MilesToKm(vs.Odometer)
		s.Locked = &locked
		s.OdometerKm = &odo
		ts = max(ts, vs.Timestamp)
	}
	if ts > 0 {
		s.UpdatedAt = ParseTimestamp(ts)
	}
	return s
}

// MilesToKm 英里转公里
func MilesToKm(miles float64) float64 {
	return miles * 1.60934
}

// ParseTimestamp 解析 Tesla API 时间戳 (毫秒)
func ParseTimestamp(ts int64) time.Time {
	return time.UnixMilli(ts)
}
