package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
	"foodtrace/internal/usecase/traceability"
)

type fixtureLocation struct {
	Lat         float64 `yaml:"lat"`
	Lon         float64 `yaml:"lon"`
	Description string  `yaml:"description"`
}

type fixtureUser struct {
	ID       uint64           `yaml:"id"`
	Name     string           `yaml:"name"`
	Role     string           `yaml:"role"`
	Location *fixtureLocation `yaml:"location"`
}

type fixtureProduct struct {
	ID         uint64 `yaml:"id"`
	Name       string `yaml:"name"`
	Category   string `yaml:"category"`
	ProducerID uint64 `yaml:"producer_id"`
}

type fixtureZone struct {
	ID         uint64 `yaml:"id"`
	ProducerID uint64 `yaml:"producer_id"`
	Name       string `yaml:"name"`
}

type fixtureSensor struct {
	ID     uint64 `yaml:"id"`
	ZoneID uint64 `yaml:"zone_id"`
	Kind   string `yaml:"kind"`
	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

type fixtureReading struct {
	ID             uint64           `yaml:"id"`
	SensorID       uint64           `yaml:"sensor_id"`
	Temperature    *float64         `yaml:"temperature"`
	Humidity       *float64         `yaml:"humidity"`
	GasLevel       *float64         `yaml:"gas_level"`
	LightLevel     *float64         `yaml:"light_level"`
	ShockDetected  bool             `yaml:"shock_detected"`
	SoilMoisture   *float64         `yaml:"soil_moisture"`
	PH             *float64         `yaml:"ph"`
	ReadingQuality *float64         `yaml:"reading_quality"`
	Location       *fixtureLocation `yaml:"location"`
	Extra          map[string]any   `yaml:"extra"`
	RecordedAt     time.Time        `yaml:"recorded_at"`
}

type directoryFixtures struct {
	Users    []fixtureUser    `yaml:"users"`
	Products []fixtureProduct `yaml:"products"`
	Zones    []fixtureZone    `yaml:"sensor_zones"`
	Sensors  []fixtureSensor  `yaml:"sensors"`
	Readings []fixtureReading `yaml:"sensor_readings"`
}

type directoryImportCounts struct {
	Users    int
	Products int
	Zones    int
	Sensors  int
	Readings int
}

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the local product, identity and sensor directories",
}

var directoryImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load users, products, sensor zones, sensors and readings from a YAML file",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		file, _ := cmd.Flags().GetString("file")
		raw, err := os.ReadFile(file)
		if err != nil {
			return errs.Wrapf(err, "read fixtures %s", file)
		}
		fixtures, err := parseDirectoryFixtures(raw)
		if err != nil {
			return err
		}
		if app.Directory == nil {
			return errors.New("directory writer is not configured")
		}

		counts, err := importDirectoryFixtures(ctx, app.Directory, fixtures, time.Now().UTC())
		if err != nil {
			logging.Error(ctx, "directory import failed", slog.Any("err", errs.Loggable(err)))
			return err
		}

		logging.Info(ctx, "directory import finished",
			slog.String("file", file),
			slog.Int("users", counts.Users),
			slog.Int("products", counts.Products),
			slog.Int("readings", counts.Readings),
		)
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported users=%d products=%d zones=%d sensors=%d readings=%d\n",
			counts.Users, counts.Products, counts.Zones, counts.Sensors, counts.Readings)
		return err
	}),
}

func parseDirectoryFixtures(raw []byte) (directoryFixtures, error) {
	var fixtures directoryFixtures
	if err := yaml.Unmarshal(raw, &fixtures); err != nil {
		return directoryFixtures{}, errs.Wrap(err, "decode fixtures yaml")
	}
	return fixtures, nil
}

// importDirectoryFixtures writes fixtures parents first. Readings without
// recorded_at are stamped with now.
func importDirectoryFixtures(ctx context.Context, writer ports.DirectoryWriter, fixtures directoryFixtures, now time.Time) (directoryImportCounts, error) {
	var counts directoryImportCounts

	for _, user := range fixtures.Users {
		location, err := fixtureToLocation(user.Location)
		if err != nil {
			return counts, errs.Wrapf(err, "user %d", user.ID)
		}
		if err := writer.UpsertUser(ctx, ports.User{
			UserID:   user.ID,
			Name:     strings.TrimSpace(user.Name),
			Role:     strings.ToLower(strings.TrimSpace(user.Role)),
			Location: location,
		}); err != nil {
			return counts, errs.Wrapf(err, "import user %d", user.ID)
		}
		counts.Users++
	}

	for _, product := range fixtures.Products {
		if err := writer.UpsertProduct(ctx, ports.Product{
			ProductID:  product.ID,
			Name:       strings.TrimSpace(product.Name),
			Category:   strings.TrimSpace(product.Category),
			ProducerID: product.ProducerID,
		}); err != nil {
			return counts, errs.Wrapf(err, "import product %d", product.ID)
		}
		counts.Products++
	}

	for _, zone := range fixtures.Zones {
		if err := writer.UpsertZone(ctx, ports.SensorZone{
			ZoneID:     zone.ID,
			ProducerID: zone.ProducerID,
			Name:       strings.TrimSpace(zone.Name),
		}); err != nil {
			return counts, errs.Wrapf(err, "import sensor zone %d", zone.ID)
		}
		counts.Zones++
	}

	for _, sensor := range fixtures.Sensors {
		active := true
		if sensor.Active != nil {
			active = *sensor.Active
		}
		if err := writer.UpsertSensor(ctx, ports.Sensor{
			SensorID: sensor.ID,
			ZoneID:   sensor.ZoneID,
			Kind:     strings.TrimSpace(sensor.Kind),
			Active:   active,
		}); err != nil {
			return counts, errs.Wrapf(err, "import sensor %d", sensor.ID)
		}
		counts.Sensors++
	}

	for _, reading := range fixtures.Readings {
		location, err := fixtureToLocation(reading.Location)
		if err != nil {
			return counts, errs.Wrapf(err, "reading %d", reading.ID)
		}
		quality := 1.0
		if reading.ReadingQuality != nil {
			quality = *reading.ReadingQuality
		}
		recordedAt := reading.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = now
		}
		if _, err := writer.InsertReading(ctx, ports.SensorReading{
			ReadingID:      reading.ID,
			SensorID:       reading.SensorID,
			Temperature:    reading.Temperature,
			Humidity:       reading.Humidity,
			GasLevel:       reading.GasLevel,
			LightLevel:     reading.LightLevel,
			ShockDetected:  reading.ShockDetected,
			SoilMoisture:   reading.SoilMoisture,
			PH:             reading.PH,
			ReadingQuality: quality,
			Location:       location,
			ExtraData:      reading.Extra,
			RecordedAt:     recordedAt.UTC(),
		}); err != nil {
			return counts, errs.Wrapf(err, "import sensor reading %d", reading.ID)
		}
		counts.Readings++
	}

	return counts, nil
}

func fixtureToLocation(location *fixtureLocation) (*trace.Location, error) {
	if location == nil {
		return nil, nil
	}
	out := &trace.Location{Lat: location.Lat, Lon: location.Lon, Description: location.Description}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(directoryCmd)
	directoryCmd.AddCommand(directoryImportCmd)
	directoryImportCmd.Flags().String("file", "configs/fixtures.yaml", "Fixture YAML file")
}
