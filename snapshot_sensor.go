package tse

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var SnapshotSensorModel = resource.NewModel("devrel", "tse", "snapshot")

func init() {
	resource.RegisterComponent(sensor.API, SnapshotSensorModel,
		resource.Registration[sensor.Sensor, *SnapshotSensorConfig]{
			Constructor: NewSnapshotSensor,
		},
	)
}

// SnapshotSensorConfig names the extender whose last accepted command is
// reported.
type SnapshotSensorConfig struct {
	Extender string `json:"extender"`
}

// Validate ensures all parts of the config are valid
func (cfg *SnapshotSensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Extender == "" {
		return nil, nil, fmt.Errorf("%s: must specify extender", path)
	}
	return []string{generic.Named(cfg.Extender).String()}, nil, nil
}

type snapshotSensor struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	logger   logging.Logger
	extender resource.Resource
}

// NewSnapshotSensor creates a sensor reading the extender's last snapshot.
func NewSnapshotSensor(
	ctx context.Context,
	deps resource.Dependencies,
	rawConf resource.Config,
	logger logging.Logger,
) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*SnapshotSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	extender, err := resource.FromDependencies[resource.Resource](deps, generic.Named(conf.Extender))
	if err != nil {
		return nil, fmt.Errorf("failed to get extender %q: %w", conf.Extender, err)
	}

	return &snapshotSensor{
		Named:    rawConf.ResourceName().AsNamed(),
		logger:   logger,
		extender: extender,
	}, nil
}

// Readings returns the last accepted command, its pose and whether any
// actuator saturated. The extender may live in another process, so it is
// queried through DoCommand.
func (s *snapshotSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	out, err := s.extender.DoCommand(ctx, map[string]interface{}{"command": "last_snapshot"})
	if err != nil {
		return nil, fmt.Errorf("reading snapshot from %s: %w", s.extender.Name().ShortName(), err)
	}
	if available, _ := out["available"].(bool); !available {
		return map[string]interface{}{"available": false}, nil
	}

	readings := map[string]interface{}{"available": true}
	for _, key := range []string{"time", "session", "saturated"} {
		readings[key] = out[key]
	}
	if pose, ok := floats(out["pose"]); ok && len(pose) == 6 {
		for i, name := range []string{"x", "y", "z", "yaw", "pitch", "roll"} {
			readings[name] = pose[i]
		}
	}
	if commands, ok := floats(out["commands"]); ok {
		for i, v := range commands {
			readings[fmt.Sprintf("act%d", i)] = v
		}
	}
	return readings, nil
}

func (s *snapshotSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, _ := cmd["command"].(string)
	switch command {
	case "status":
		return s.extender.DoCommand(ctx, cmd)
	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

// floats accepts both local []float64 values and []interface{} decoded from
// the wire.
func floats(v interface{}) ([]float64, bool) {
	switch vs := v.(type) {
	case []float64:
		return vs, true
	case []interface{}:
		out := make([]float64, 0, len(vs))
		for _, x := range vs {
			f, ok := x.(float64)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	default:
		return nil, false
	}
}
