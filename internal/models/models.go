package models

import "time"

// Vehicle 账户下的车辆
type Vehicle struct {
	ID             int64     `json:"id" db:"id"`
	TeslaID        int64     `json:"tesla_id" db:"tesla_id"`
	TeslaVehicleID int64     `json:"tesla_vehicle_id" db:"tesla_vehicle_id"`
	VIN            string    `json:"vin" db:"vin"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	State          string    `json:"state" db:"state"` // online, asleep, offline
	InService      bool      `json:"in_service" db:"in_service"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// CommandLog 命令执行记录
type CommandLog struct {
	ID         int64     `json:"id" db:"id"`
	VIN        string    `json:"vin" db:"vin"`
	Command    string    `json:"command" db:"command"`
	Success    bool      `json:"success" db:"success"`
	HTTPStatus *int      `json:"http_status,omitempty" db:"http_status"` // 网络错误时为空
	Message    string    `json:"message" db:"message"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CommandLogPage 分页结果
type CommandLogPage struct {
	Items  []*CommandLog `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
