package tse

import (
	"context"

	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"

	"tse/transport"
)

var DiscoveryModel = resource.NewModel("devrel", "tse", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		DiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newDiscovery,
		})
}

// DiscoveryConfig is the configuration for the discovery service
type DiscoveryConfig struct {
	// Baud rate written into discovered extender configs.
	Baudrate int `json:"baudrate,omitempty"`
}

// Validate ensures the config is valid
func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	return nil, nil, nil
}

type tseDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger   logging.Logger
	baudrate int

	// replaced in tests
	candidates func() ([]transport.PortInfo, error)
}

func newDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	return &tseDiscovery{
		Named:      conf.ResourceName().AsNamed(),
		logger:     logger,
		baudrate:   cfg.Baudrate,
		candidates: transport.CandidatePorts,
	}, nil
}

// DiscoverResources proposes an extender and a snapshot sensor for every USB
// serial port. The controller only speaks once a command is pending, so ports
// are not probed.
func (dis *tseDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	ports, err := dis.candidates()
	if err != nil {
		dis.logger.Warnf("Failed to enumerate serial ports: %v", err)
		return nil, nil
	}
	dis.logger.Debugf("Found %d candidate ports", len(ports))

	var configs []resource.Config
	for _, port := range ports {
		select {
		case <-ctx.Done():
			dis.logger.Info("Discovery cancelled")
			return configs, ctx.Err()
		default:
		}
		configs = append(configs, dis.generateConfigs(port)...)
	}

	if len(configs) == 0 {
		dis.logger.Info("No extender controllers discovered")
	} else {
		dis.logger.Infof("Discovered %d component configurations", len(configs))
	}
	return configs, nil
}

func (dis *tseDiscovery) generateConfigs(port transport.PortInfo) []resource.Config {
	suffix := transport.PortSuffix(port.Name)
	extenderName := "tse-extender-" + suffix

	tr := map[string]interface{}{
		"kind": transport.KindSerial,
		"port": port.Name,
	}
	if dis.baudrate > 0 {
		tr["baudrate"] = dis.baudrate
	}

	return []resource.Config{
		{
			Name:       extenderName,
			API:        generic.API,
			Model:      ExtenderModel,
			Attributes: map[string]interface{}{"transport": tr},
		},
		{
			Name:       "tse-snapshot-" + suffix,
			API:        sensor.API,
			Model:      SnapshotSensorModel,
			Attributes: map[string]interface{}{"extender": extenderName},
			DependsOn:  []string{extenderName},
		},
	}
}
