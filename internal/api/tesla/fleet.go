package tesla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// apiResponse 通用 API 响应结构
type apiResponse struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error,omitempty"`
	Count    int             `json:"count,omitempty"`
}

// FleetAPI 直连 Fleet API 的只读查询
type FleetAPI struct {
	client  *Client
	baseURL string
}

// NewFleetAPI 创建 Fleet API 访问器
func NewFleetAPI(client *Client, baseURL string) *FleetAPI {
	return &FleetAPI{client: client, baseURL: baseURL}
}

// ListVehicles 获取账户下的车辆列表
func (f *FleetAPI) ListVehicles(ctx context.Context) (Result, error) {
	return f.client.Do(ctx, http.MethodGet, f.baseURL, "/api/1/vehicles", nil)
}

// DecodeVehicles 解析车辆列表响应
func DecodeVehicles(r Result) ([]Vehicle, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	raw, err := unwrap(r.Body)
	if err != nil {
		return nil, err
	}
	var vehicles []Vehicle
	if err := json.Unmarshal(raw, &vehicles); err != nil {
		return nil, fmt.Errorf("decode vehicles: %w", err)
	}
	return vehicles, nil
}

// DecodeVehicle 解析单车响应
func DecodeVehicle(r Result) (*Vehicle, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	raw, err := unwrap(r.Body)
	if err != nil {
		return nil, err
	}
	var v Vehicle
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode vehicle: %w", err)
	}
	return &v, nil
}

// DecodeVehicleData 解析 vehicle_data 响应
func DecodeVehicleData(r Result) (*VehicleData, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	raw, err := unwrap(r.Body)
	if err != nil {
		return nil, err
	}
	var data VehicleData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode vehicle data: %w", err)
	}
	return &data, nil
}

func unwrap(body []byte) (json.RawMessage, error) {
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != "" {
		return nil, fmt.Errorf("api error: %s", apiResp.Error)
	}
	if len(apiResp.Response) == 0 {
		return nil, errors.New("response field missing")
	}
	return apiResp.Response, nil
}
