package tesla

import (
	"fmt"
	"net/http"
)

// Command 车辆命令
type Command string

// 支持的命令
const (
	CommandLock            Command = "lock"
	CommandUnlock          Command = "unlock"
	CommandFlashLights     Command = "flash_lights"
	CommandHonkHorn        Command = "honk_horn"
	CommandChargePortOpen  Command = "charge_port_open"
	CommandChargePortClose Command = "charge_port_close"
	CommandVentWindows     Command = "vent_windows"
	CommandFrontTrunk      Command = "front_trunk"
	CommandRearTrunk       Command = "rear_trunk"
	CommandClimateOn       Command = "climate_on"
	CommandClimateOff      Command = "climate_off"
	CommandVehicle         Command = "vehicle"
	CommandVehicleData     Command = "vehicle_data"
	CommandWakeUp          Command = "wake_up"
)

type endpoint struct {
	method         string
	path           string // 相对 /api/1/vehicles/{vin}
	body           string
	requiresOnline bool
}

var endpoints = map[Command]endpoint{
	CommandLock:            {http.MethodPost, "/command/door_lock", "", true},
	CommandUnlock:          {http.MethodPost, "/command/door_unlock", "", true},
	CommandFlashLights:     {http.MethodPost, "/command/flash_lights", "", true},
	CommandHonkHorn:        {http.MethodPost, "/command/honk_horn", "", true},
	CommandChargePortOpen:  {http.MethodPost, "/command/charge_port_door_open", "", true},
	CommandChargePortClose: {http.MethodPost, "/command/charge_port_door_close", "", true},
	CommandVentWindows:     {http.MethodPost, "/command/window_control", `{"command":"vent"}`, true},
	CommandFrontTrunk:      {http.MethodPost, "/command/actuate_trunk", `{"which_trunk":"front"}`, true},
	CommandRearTrunk:       {http.MethodPost, "/command/actuate_trunk", `{"which_trunk":"rear"}`, true},
	CommandClimateOn:       {http.MethodPost, "/command/auto_conditioning_start", "", true},
	CommandClimateOff:      {http.MethodPost, "/command/auto_conditioning_stop", "", true},
	CommandVehicle:         {http.MethodGet, "", "", false},
	CommandVehicleData:     {http.MethodGet, "/vehicle_data", "", true},
	CommandWakeUp:          {http.MethodPost, "/wake_up", "", false},
}

// Commands 按固定顺序返回全部命令
func Commands() []Command {
	return []Command{
		CommandLock, CommandUnlock, CommandFlashLights, CommandHonkHorn,
		CommandChargePortOpen, CommandChargePortClose, CommandVentWindows,
		CommandFrontTrunk, CommandRearTrunk, CommandClimateOn, CommandClimateOff,
		CommandVehicle, CommandVehicleData, CommandWakeUp,
	}
}

// ParseCommand 解析命令名
func ParseCommand(s string) (Command, error) {
	c := Command(s)
	if _, ok := endpoints[c]; !ok {
		return "", fmt.Errorf("unknown command: %q", s)
	}
	return c, nil
}

// Valid 是否为已知命令
func (c Command) Valid() bool {
	_, ok := endpoints[c]
	return ok
}

// RequiresOnline 执行前是否需要车辆在线
func (c Command) RequiresOnline() bool {
	return endpoints[c].requiresOnline
}

// IsRead 是否为只读查询
func (c Command) IsRead() bool {
	return endpoints[c].method == http.MethodGet
}

// Method HTTP 方法
func (c Command) Method() string {
	return endpoints[c].method
}

// Path 指定车辆的请求路径
func (c Command) Path(vin string) string {
	return "/api/1/vehicles/" + vin + endpoints[c].path
}

// Body 固定请求体，无则返回 nil
func (c Command) Body() []byte {
	if b := endpoints[c].body; b != "" {
		return []byte(b)
	}
	return nil
}
