package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/teslactl/internal/models"
)

// VehicleRepository 车辆数据仓库
type VehicleRepository struct {
	db  *DB
	now func() time.Time
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db, now: time.Now}
}

const vehicleColumns = `id, tesla_id, tesla_vehicle_id, vin, display_name, state, in_service, created_at, updated_at`

// Upsert 按 VIN 创建或更新车辆
func (r *VehicleRepository) Upsert(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (tesla_id, tesla_vehicle_id, vin, display_name, state, in_service, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (vin) DO UPDATE SET
			tesla_id = EXCLUDED.tesla_id,
			tesla_vehicle_id = EXCLUDED.tesla_vehicle_id,
			display_name = EXCLUDED.display_name,
			state = EXCLUDED.state,
			in_service = EXCLUDED.in_service,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	now := r.now()
	err := r.db.Pool.QueryRow(ctx, query,
		v.TeslaID,
		v.TeslaVehicleID,
		v.VIN,
		v.DisplayName,
		v.State,
		v.InService,
		now,
		now,
	).Scan(&v.ID, &v.CreatedAt)

	if err != nil {
		return fmt.Errorf("upsert vehicle: %w", err)
	}

	v.UpdatedAt = now
	return nil
}

// GetByVIN 通过 VIN 获取车辆
func (r *VehicleRepository) GetByVIN(ctx context.Context, vin string) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE vin = $1`
	v := &models.Vehicle{}
	err := r.db.Pool.QueryRow(ctx, query, vin).Scan(
		&v.ID,
		&v.TeslaID,
		&v.TeslaVehicleID,
		&v.VIN,
		&v.DisplayName,
		&v.State,
		&v.InService,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get vehicle by vin: %w", notFound(err))
	}
	return v, nil
}

// List 获取所有车辆
func (r *VehicleRepository) List(ctx context.Context) ([]*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v := &models.Vehicle{}
		err := rows.Scan(
			&v.ID,
			&v.TeslaID,
			&v.TeslaVehicleID,
			&v.VIN,
			&v.DisplayName,
			&v.State,
			&v.InService,
			&v.CreatedAt,
			&v.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicles: %w", err)
	}

	return vehicles, nil
}

// UpdateState 更新车辆连接状态，车辆不存在时返回 ErrNotFound
func (r *VehicleRepository) UpdateState(ctx context.Context, vin, state string) error {
	query := `UPDATE vehicles SET state = $1, updated_at = $2 WHERE vin = $3`
	tag, err := r.db.Pool.Exec(ctx, query, state, r.now(), vin)
	if err != nil {
		return fmt.Errorf("update vehicle state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update vehicle state: %w", ErrNotFound)
	}
	return nil
}
