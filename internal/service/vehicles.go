package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/api/tesla"
	"github.com/langchou/teslactl/internal/models"
)

// ListVehicles 从 Fleet API 获取车辆列表，启用持久化时同步到数据库
func (s *CommandService) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	res, err := s.fleet.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	if !res.OK() {
		s.logger.Warn("List vehicles failed", zap.Int("status", res.Code))
	}
	found, err := tesla.DecodeVehicles(res)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	vehicles := make([]*models.Vehicle, 0, len(found))
	for _, v := range found {
		m := &models.Vehicle{
			TeslaID:        v.ID,
			TeslaVehicleID: v.VehicleID,
			VIN:            v.VIN,
			DisplayName:    v.DisplayName,
			State:          v.State,
			InService:      v.InService,
		}
		if s.vehicles != nil {
			if err := s.vehicles.Upsert(ctx, m); err != nil {
				return nil, fmt.Errorf("sync vehicle %s: %w", v.VIN, err)
			}
		}
		s.states.GetOrCreate(v.VIN).Observe(v.State)
		vehicles = append(vehicles, m)
	}

	s.logger.Info("Vehicles synced", zap.Int("count", len(vehicles)))
	return vehicles, nil
}

// StoredVehicles 数据库中的车辆，未启用持久化时为空
func (s *CommandService) StoredVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	if s.vehicles == nil {
		return []*models.Vehicle{}, nil
	}
	return s.vehicles.List(ctx)
}
