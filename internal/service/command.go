package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/api/tesla"
	"github.com/langchou/teslactl/internal/models"
	"github.com/langchou/teslactl/internal/state"
	"github.com/langchou/teslactl/pkg/ws"
)

// 通用结果文本
const (
	TextTokenUnavailable = "Token unavailable. Please re-authenticate in Settings."
	TextVehicleNotFound  = "Vehicle not found. Check VIN in Settings."
	TextVehicleOffline   = "Vehicle offline. Try waking it up."
)

// commandText 命令的进度、成功与失败文本
type commandText struct {
	progress string
	success  string
	failure  string
}

var commandTexts = map[tesla.Command]commandText{
	tesla.CommandFrontTrunk:      {"Opening front trunk...", "Front trunk opened successfully", "Failed to open front trunk"},
	tesla.CommandRearTrunk:       {"Opening rear trunk...", "Rear trunk opened successfully", "Failed to open rear trunk"},
	tesla.CommandClimateOn:       {"Turning climate on...", "Climate turned on successfully", "Failed to turn on climate"},
	tesla.CommandClimateOff:      {"Turning climate off...", "Climate turned off successfully", "Failed to turn off climate"},
	tesla.CommandChargePortClose: {"Closing charger door...", "Charger door closed successfully", "Failed to close charger door"},
	tesla.CommandChargePortOpen:  {"Opening charger door...", "Charger door opened successfully", "Failed to open charger door"},
	tesla.CommandLock:            {"Locking doors...", "Doors locked successfully", "Failed to lock doors"},
	tesla.CommandUnlock:          {"Unlocking doors...", "Doors unlocked successfully", "Failed to unlock doors"},
	tesla.CommandFlashLights:     {"Flashing lights...", "Lights flashed successfully", "Failed to flash lights"},
	tesla.CommandHonkHorn:        {"Honking horn...", "Horn honked successfully", "Failed to honk horn"},
	tesla.CommandVentWindows:     {"Venting windows...", "Windows vented successfully", "Failed to vent windows"},
	tesla.CommandWakeUp:          {"Sending wake up...", "Wake up successful", "Failed to wake up"},
	tesla.CommandVehicle:         {"Fetching vehicle info...", "Vehicle info fetch successful", "Failed to fetch vehicle info"},
	tesla.CommandVehicleData:     {"Fetching vehicle infoEx...", "Vehicle infoEx fetch successful", "Failed to fetch vehicle infoEx"},
}

// Outcome 命令执行结果
type Outcome struct {
	Command    tesla.Command `json:"command"`
	VIN        string        `json:"vin,omitempty"`
	Success    bool          `json:"success"`
	Text       string        `json:"text"`
	HTTPStatus int           `json:"http_status,omitempty"` // 0 表示未收到响应
	Payload    string        `json:"payload,omitempty"`     // 查询命令的格式化 JSON
	Reauth     bool          `json:"reauth,omitempty"`      // 需要重新授权
	Duration   time.Duration `json:"duration"`
}

// Run 执行命令
// 需要在线的命令先等待车辆上线，结果写入状态文本、推送并记录
func (s *CommandService) Run(ctx context.Context, cmd tesla.Command) Outcome {
	texts, ok := commandTexts[cmd]
	if !ok {
		return Outcome{Command: cmd, Text: fmt.Sprintf("Unknown command: %s", cmd)}
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if cmd.IsRead() {
		s.mu.Lock()
		s.payload = ""
		s.mu.Unlock()
	}
	s.setStatus(texts.progress)

	session := s.Session()
	if session == nil {
		out := Outcome{Command: cmd, Text: StatusNoVehicleSelected}
		s.finish(ctx, out)
		return out
	}

	start := time.Now()
	out := s.execute(ctx, session, cmd, texts)
	out.VIN = session.VIN()
	out.Duration = time.Since(start)

	s.logger.Info("Command finished",
		zap.String("vin", out.VIN),
		zap.String("command", string(cmd)),
		zap.Bool("success", out.Success),
		zap.Int("status", out.HTTPStatus),
		zap.Duration("duration", out.Duration))

	s.finish(ctx, out)
	return out
}

func (s *CommandService) execute(ctx context.Context, session *tesla.Session, cmd tesla.Command, texts commandText) Outcome {
	out := Outcome{Command: cmd}
	fail := func(detail string) Outcome {
		out.Text = texts.failure + ": " + detail
		return out
	}

	if cmd.RequiresOnline() {
		online, err := session.WaitForVehicleOnline(ctx)
		if err != nil {
			return fail("Unexpected error: " + err.Error())
		}
		if !online.OK() {
			out.HTTPStatus = online.Code
			return fail(fmt.Sprintf("Failed to ensure vehicle is online: HTTP %d", online.Code))
		}
	}

	res, err := session.Execute(ctx, cmd)
	if err != nil {
		return fail("Unexpected error: " + err.Error())
	}
	out.HTTPStatus = res.Code

	if res.OK() {
		out.Success = true
		out.Text = texts.success
		if cmd.IsRead() {
			out.Payload = prettyJSON(res.Body)
		}
		s.absorb(session.VIN(), cmd, res)
		return out
	}

	switch res.Code {
	case http.StatusUnauthorized:
		out.Text = TextTokenUnavailable
		out.Reauth = true
	case http.StatusNotFound:
		out.Text = TextVehicleNotFound
	case http.StatusRequestTimeout:
		out.Text = TextVehicleOffline
	default:
		return fail(fmt.Sprintf("HTTP %d", res.Code))
	}
	return out
}

// absorb 将成功结果同步到连接状态
func (s *CommandService) absorb(vin string, cmd tesla.Command, res tesla.Result) {
	machine := s.states.GetOrCreate(vin)
	switch cmd {
	case tesla.CommandWakeUp:
		machine.WakeSent()
	case tesla.CommandVehicle:
		v, err := tesla.DecodeVehicle(res)
		if err != nil {
			s.logger.Debug("Cannot decode vehicle", zap.Error(err))
			return
		}
		machine.Observe(v.State)
	case tesla.CommandVehicleData:
		data, err := tesla.DecodeVehicleData(res)
		if err != nil {
			s.logger.Debug("Cannot decode vehicle data", zap.Error(err))
			return
		}
		machine.Observe(data.State)
		sum := data.Summary()
		machine.UpdateState(func(st *state.Snapshot) {
			st.BatteryLevel = sum.BatteryLevel
			st.RangeKm = sum.RangeKm
			st.InsideTemp = sum.InsideTemp
			st.ClimateOn = sum.ClimateOn
			st.Locked = sum.Locked
			st.UpdatedAt = sum.UpdatedAt
		})
	}
}

func (s *CommandService) finish(ctx context.Context, out Outcome) {
	s.mu.Lock()
	s.status = out.Text
	if out.Payload != "" {
		s.payload = out.Payload
	}
	if out.Reauth {
		s.reauth = true
	} else if out.Success {
		s.reauth = false
	}
	s.mu.Unlock()

	s.broadcast(ws.MsgTypeStatus, StatusUpdate{Text: out.Text, Command: out.Command, Outcome: &out})

	if s.logs == nil || out.VIN == "" {
		return
	}
	entry := &models.CommandLog{
		VIN:        out.VIN,
		Command:    string(out.Command),
		Success:    out.Success,
		Message:    out.Text,
		DurationMs: out.Duration.Milliseconds(),
	}
	if out.HTTPStatus != 0 {
		code := out.HTTPStatus
		entry.HTTPStatus = &code
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to record command", zap.String("command", entry.Command), zap.Error(err))
	}
}

// NeedsReauth 最近一次命令是否因令牌失效而失败
func (s *CommandService) NeedsReauth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reauth
}

// History 分页获取选中车辆的命令记录
func (s *CommandService) History(ctx context.Context, limit, offset int) (*models.CommandLogPage, error) {
	session := s.Session()
	if session == nil {
		return nil, ErrNoVehicleSelected
	}
	if s.logs == nil {
		return &models.CommandLogPage{Items: []*models.CommandLog{}, Limit: limit, Offset: offset}, nil
	}

	items, err := s.logs.ListByVIN(ctx, session.VIN(), limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.logs.CountByVIN(ctx, session.VIN())
	if err != nil {
		return nil, err
	}
	return &models.CommandLogPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// prettyJSON 格式化 JSON，无法解析时原样返回
func prettyJSON(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "   "); err != nil {
		return string(body)
	}
	return buf.String()
}
