package usecases

import (
	"context"
	"errors"

	"sensor-ingest/cache"
	"sensor-ingest/entities"
	"sensor-ingest/repositories"
)

var ErrNotCached = errors.New("no cached state for device")

// DashboardCache is the read side of the live cache.
type DashboardCache interface {
	DeviceState(ctx context.Context, name string) (map[string]string, error)
	History(ctx context.Context, kind entities.SensorKind, name string, limit int64) ([]cache.HistoryEntry, error)
	ActiveDevices(ctx context.Context, kind entities.SensorKind) ([]string, error)
	TopDevices(ctx context.Context, kind entities.SensorKind, n int64) ([]cache.RankedDevice, error)
}

// DeviceUseCase backs the ops read endpoints.
type DeviceUseCase struct {
	DeviceRepo repositories.DeviceRepository
	AlertRepo  repositories.AlertRepository
	Cache      DashboardCache
}

func NewDeviceUseCase(deviceRepo repositories.DeviceRepository, alertRepo repositories.AlertRepository, cache DashboardCache) *DeviceUseCase {
	return &DeviceUseCase{
		DeviceRepo: deviceRepo,
		AlertRepo:  alertRepo,
		Cache:      cache,
	}
}

// GetDevice retrieves a device by name
func (uc *DeviceUseCase) GetDevice(ctx context.Context, name string) (*entities.Device, error) {
	if name == "" {
		return nil, errors.New("device name is required")
	}
	return uc.DeviceRepo.GetByName(ctx, name)
}

// GetAllDevices retrieves all devices
func (uc *DeviceUseCase) GetAllDevices(ctx context.Context) ([]entities.Device, error) {
	return uc.DeviceRepo.GetAll(ctx)
}

// CountDevices returns the number of known devices per kind
func (uc *DeviceUseCase) CountDevices(ctx context.Context) (map[entities.SensorKind]int64, error) {
	return uc.DeviceRepo.CountByKind(ctx)
}

// GetDeviceAlerts retrieves the stored alerts of a device, newest first
func (uc *DeviceUseCase) GetDeviceAlerts(ctx context.Context, name string) ([]entities.Alert, error) {
	if name == "" {
		return nil, errors.New("device name is required")
	}
	return uc.AlertRepo.GetByDeviceName(ctx, name)
}

// GetDeviceState returns the cached latest snapshot of a device
func (uc *DeviceUseCase) GetDeviceState(ctx context.Context, name string) (map[string]string, error) {
	state, err := uc.Cache.DeviceState(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(state) == 0 {
		return nil, ErrNotCached
	}
	return state, nil
}

// GetDeviceHistory returns up to limit cached history entries, newest first
func (uc *DeviceUseCase) GetDeviceHistory(ctx context.Context, name string, limit int64) ([]cache.HistoryEntry, error) {
	device, err := uc.GetDevice(ctx, name)
	if err != nil {
		return nil, err
	}
	return uc.Cache.History(ctx, device.SensorKind, name, limit)
}

type Dashboard struct {
	Kind   entities.SensorKind  `json:"kind"`
	Active []string             `json:"active_devices"`
	Top    []cache.RankedDevice `json:"top_devices"`
}

// GetDashboard returns the active set and the top n ranked devices of a kind
func (uc *DeviceUseCase) GetDashboard(ctx context.Context, kind entities.SensorKind, n int64) (*Dashboard, error) {
	active, err := uc.Cache.ActiveDevices(ctx, kind)
	if err != nil {
		return nil, err
	}
	top, err := uc.Cache.TopDevices(ctx, kind, n)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Kind: kind, Active: active, Top: top}, nil
}
