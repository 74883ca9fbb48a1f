package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/ports"
)

func TestDirectoryLookups(t *testing.T) {
	repo := NewDirectoryRepository(setupDB(t))
	ctx := context.Background()

	if err := repo.UpsertUser(ctx, ports.User{
		UserID:   7,
		Name:     "Green Acres",
		Role:     "producer",
		Location: &trace.Location{Lat: 48.1, Lon: 11.5, Description: "farm"},
	}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	if err := repo.UpsertProduct(ctx, ports.Product{ProductID: 1, Name: "Tomatoes", ProducerID: 7}); err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}
	if err := repo.UpsertProduct(ctx, ports.Product{ProductID: 1, Name: "Cherry Tomatoes", ProducerID: 7}); err != nil {
		t.Fatalf("UpsertProduct(update) error = %v", err)
	}

	product, err := repo.GetProduct(ctx, 1)
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if product.Name != "Cherry Tomatoes" || product.ProducerID != 7 {
		t.Fatalf("GetProduct() = %+v", product)
	}

	user, err := repo.GetUser(ctx, 7)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.Location == nil || user.Location.Description != "farm" {
		t.Fatalf("GetUser() = %+v", user)
	}

	if _, err := repo.GetProduct(ctx, 2); !errors.Is(err, trace.ErrProductNotFound) {
		t.Fatalf("GetProduct(missing) error = %v", err)
	}
	if _, err := repo.GetUser(ctx, 8); !errors.Is(err, ports.ErrUserNotFound) || !errors.Is(err, trace.ErrNotFound) {
		t.Fatalf("GetUser(missing) error = %v", err)
	}
	if _, err := repo.GetZoneForProducer(ctx, 7); !errors.Is(err, ports.ErrZoneNotFound) {
		t.Fatalf("GetZoneForProducer(missing) error = %v", err)
	}
}

func TestListRecentReadingsWindowAndLimit(t *testing.T) {
	repo := NewDirectoryRepository(setupDB(t))
	ctx := context.Background()

	if err := repo.UpsertZone(ctx, ports.SensorZone{ZoneID: 3, ProducerID: 7, Name: "greenhouse"}); err != nil {
		t.Fatalf("UpsertZone() error = %v", err)
	}
	if err := repo.UpsertSensor(ctx, ports.Sensor{SensorID: 11, ZoneID: 3, Kind: "climate", Active: true}); err != nil {
		t.Fatalf("UpsertSensor() error = %v", err)
	}
	if err := repo.UpsertSensor(ctx, ports.Sensor{SensorID: 12, ZoneID: 3, Kind: "soil", Active: false}); err != nil {
		t.Fatalf("UpsertSensor() error = %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	offsets := []time.Duration{
		-8 * 24 * time.Hour,
		-3 * time.Hour,
		-2*time.Hour - 500*time.Millisecond,
		-2 * time.Hour,
		-1 * time.Hour,
	}
	for i, offset := range offsets {
		temp := float64(i)
		if _, err := repo.InsertReading(ctx, ports.SensorReading{
			SensorID:       11,
			Temperature:    &temp,
			ReadingQuality: 0.9,
			RecordedAt:     now.Add(offset),
		}); err != nil {
			t.Fatalf("InsertReading() error = %v", err)
		}
	}

	zone, err := repo.GetZoneForProducer(ctx, 7)
	if err != nil {
		t.Fatalf("GetZoneForProducer() error = %v", err)
	}
	sensors, err := repo.ListSensors(ctx, zone.ZoneID)
	if err != nil {
		t.Fatalf("ListSensors() error = %v", err)
	}
	if len(sensors) != 1 || sensors[0].SensorID != 11 {
		t.Fatalf("ListSensors() = %+v, want only the active sensor", sensors)
	}

	readings, err := repo.ListRecentReadings(ctx, 11, now.Add(-7*24*time.Hour), 3)
	if err != nil {
		t.Fatalf("ListRecentReadings() error = %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("ListRecentReadings() len = %d, want 3", len(readings))
	}
	want := []float64{4, 3, 2}
	for i, reading := range readings {
		if *reading.Temperature != want[i] {
			t.Fatalf("reading %d temperature = %v, want %v", i, *reading.Temperature, want[i])
		}
	}

	all, err := repo.ListRecentReadings(ctx, 11, now.Add(-7*24*time.Hour), 0)
	if err != nil {
		t.Fatalf("ListRecentReadings(no limit) error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("ListRecentReadings(no limit) len = %d, want 4 inside the window", len(all))
	}
}
