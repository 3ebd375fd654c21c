package main

import (
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"

	"tse"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: tse.ExtenderModel},
		resource.APIModel{API: sensor.API, Model: tse.SnapshotSensorModel},
		resource.APIModel{API: discovery.API, Model: tse.DiscoveryModel},
	)
}
