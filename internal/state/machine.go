package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 连接状态常量
const (
	StateUnknown = "unknown"
	StateOnline  = "online"
	StateAsleep  = "asleep"
	StateOffline = "offline"
	StateWaking  = "waking"
)

// 事件常量
const (
	EventCameOnline  = "came_online"
	EventFellAsleep  = "fell_asleep"
	EventWentOffline = "went_offline"
	EventWakeSent    = "wake_sent"
	EventWakeTimeout = "wake_timeout"
)

// Snapshot 车辆连接状态快照
type Snapshot struct {
	VIN          string    `json:"vin"`
	CurrentState string    `json:"state"`
	Since        time.Time `json:"since"`
	BatteryLevel *int      `json:"battery_level,omitempty"`
	RangeKm      *float64  `json:"range_km,omitempty"`
	InsideTemp   *float64  `json:"inside_temp,omitempty"`
	ClimateOn    *bool     `json:"climate_on,omitempty"`
	Locked       *bool     `json:"locked,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChangeFunc 状态变化回调
type ChangeFunc func(vin, from, to string)

// Machine 车辆连接状态机
type Machine struct {
	mu            sync.RWMutex
	vin           string
	fsm           *fsm.FSM
	state         *Snapshot
	now           func() time.Time
	onStateChange ChangeFunc
}

// NewMachine 创建状态机，初始状态为 unknown
func NewMachine(vin string, onStateChange ChangeFunc) *Machine {
	m := &Machine{
		vin:           vin,
		now:           time.Now,
		onStateChange: onStateChange,
	}
	m.state = &Snapshot{
		VIN:          vin,
		CurrentState: StateUnknown,
		Since:        m.now(),
	}

	m.fsm = fsm.NewFSM(
		StateUnknown,
		fsm.Events{
			{Name: EventCameOnline, Src: []string{StateUnknown, StateAsleep, StateOffline, StateWaking}, Dst: StateOnline},

			// waking 期间只接受上线或超时
			{Name: EventFellAsleep, Src: []string{StateUnknown, StateOnline, StateOffline}, Dst: StateAsleep},
			{Name: EventWentOffline, Src: []string{StateUnknown, StateOnline, StateAsleep}, Dst: StateOffline},

			{Name: EventWakeSent, Src: []string{StateUnknown, StateAsleep, StateOffline}, Dst: StateWaking},
			{Name: EventWakeTimeout, Src: []string{StateWaking}, Dst: StateOffline},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.vin, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// VIN 状态机对应的车辆
func (m *Machine) VIN() string {
	return m.vin
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// GetState 获取完整状态
func (m *Machine) GetState() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// 返回副本
	stateCopy := *m.state
	stateCopy.CurrentState = m.fsm.Current()
	return &stateCopy
}

// UpdateState 更新状态数据
func (m *Machine) UpdateState(update func(s *Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(m.state)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.state.CurrentState = m.fsm.Current()
	m.state.Since = m.now()
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}

// Observe 根据 API 上报的状态触发对应事件
// 不允许的转换（包括 waking 期间的非 online 上报）被忽略
func (m *Machine) Observe(reported string) {
	var event string
	switch reported {
	case StateOnline:
		event = EventCameOnline
	case StateAsleep:
		event = EventFellAsleep
	case StateOffline:
		event = EventWentOffline
	default:
		return
	}
	m.fire(event)
}

// WakeSent 已发送唤醒命令
func (m *Machine) WakeSent() {
	m.fire(EventWakeSent)
}

// WakeTimeout 等待上线超时
func (m *Machine) WakeTimeout() {
	m.fire(EventWakeTimeout)
}

func (m *Machine) fire(event string) {
	if !m.CanTransition(event) {
		return
	}
	_ = m.Trigger(event)
}

// Manager 状态机管理器
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	onChange ChangeFunc
}

// NewManager 创建管理器
func NewManager(onChange ChangeFunc) *Manager {
	return &Manager{
		machines: make(map[string]*Machine),
		onChange: onChange,
	}
}

// GetOrCreate 获取或创建状态机
func (m *Manager) GetOrCreate(vin string) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if machine, ok := m.machines[vin]; ok {
		return machine
	}

	machine := NewMachine(vin, m.onChange)
	m.machines[vin] = machine
	return machine
}

// Get 获取状态机
func (m *Manager) Get(vin string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[vin]
	return machine, ok
}

// GetAllStates 获取所有车辆状态
func (m *Manager) GetAllStates() map[string]*Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]*Snapshot)
	for vin, machine := range m.machines {
		states[vin] = machine.GetState()
	}
	return states
}
