package main

import (
	"context"

	"go.viam.com/rdk/logging"

	"tse/transport"
)

func runPorts(ctx context.Context, args []string, logger logging.Logger) error {
	fs := newFlagSet("ports", portsUsage)
	all := fs.Bool("all", false, "list every serial port, not only USB adapters")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if !*all {
		ports = transport.FilterCandidatePorts(ports)
	}
	logger.Debugf("found %d ports", len(ports))

	type portEntry struct {
		transport.PortInfo
		Suffix string `json:"suffix"`
	}
	out := make([]portEntry, 0, len(ports))
	for _, p := range ports {
		out = append(out, portEntry{PortInfo: p, Suffix: transport.PortSuffix(p.Name)})
	}
	return printJSON(out)
}
