package tse

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"

	"tse/channel"
	"tse/ik"
	"tse/snapshot"
)

// mmPerInch converts spatial poses, which are in millimeters, to the
// mechanism's inches.
const mmPerInch = 25.4

var ExtenderModel = resource.NewModel("devrel", "tse", "extender")

func init() {
	resource.RegisterComponent(generic.API, ExtenderModel,
		resource.Registration[resource.Resource, *ExtenderConfig]{
			Constructor: newExtenderResource,
		},
	)
}

// Extender drives a Triple Scissor Extender: each target pose is solved to
// six actuator commands and handed to the controller.
type Extender struct {
	resource.Named
	resource.AlwaysRebuild

	logger   logging.Logger
	cfg      *ExtenderConfig
	solver   *ik.Solver
	registry *ChannelRegistry
	channel  *channel.Channel
	endpoint string

	recorder *snapshot.Recorder
	sinks    snapshot.Multi
	mqtt     *snapshot.MQTTPublisher

	mu         sync.Mutex
	moves      uint64
	failures   uint64
	lastReport *channel.Report
	closed     bool
}

func newExtenderResource(
	ctx context.Context,
	deps resource.Dependencies,
	rawConf resource.Config,
	logger logging.Logger,
) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*ExtenderConfig](rawConf)
	if err != nil {
		return nil, err
	}
	return NewExtender(ctx, rawConf.ResourceName(), conf, globalRegistry, logger)
}

// NewExtender builds an extender on a channel from registry. cfg must
// already be validated.
func NewExtender(
	ctx context.Context,
	name resource.Name,
	cfg *ExtenderConfig,
	registry *ChannelRegistry,
	logger logging.Logger,
) (*Extender, error) {
	solver, err := ik.NewSolver(cfg.IK(), logger)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mechanism config")
	}

	e := &Extender{
		Named:    name.AsNamed(),
		logger:   logger,
		cfg:      cfg,
		solver:   solver,
		registry: registry,
		endpoint: cfg.Transport.Endpoint(),
		recorder: snapshot.NewRecorder(cfg.History),
	}
	e.sinks = snapshot.Multi{e.recorder}

	if path := cfg.ResultsPath(); path != "" {
		csvRec, err := snapshot.CreateCSVFile(path)
		if err != nil {
			return nil, err
		}
		logger.Infof("recording accepted commands to %s", path)
		e.sinks = append(e.sinks, csvRec)
	}

	if cfg.MQTT != nil {
		e.mqtt = snapshot.NewMQTTPublisher(*cfg.MQTT, logger)
		if err := e.mqtt.Connect(ctx); err != nil {
			// The client keeps retrying in the background.
			logger.Warnf("mqtt not yet connected: %v", err)
		}
		e.sinks = append(e.sinks, e.mqtt)
	}

	e.channel, err = registry.Acquire(ctx, cfg, logger)
	if err != nil {
		return nil, multierr.Append(err, e.sinks.Close())
	}

	logger.Infof("extender %s ready on %s", name.ShortName(), e.endpoint)
	return e, nil
}

// Solve computes the command for p without sending it.
func (e *Extender) Solve(ctx context.Context, p ik.Pose) (*ik.Result, error) {
	return e.solver.Solve(ctx, p)
}

// MoveToPose solves p, transmits the command and records a snapshot once the
// controller accepts it.
func (e *Extender) MoveToPose(ctx context.Context, p ik.Pose) (*ik.Result, channel.Report, error) {
	res, err := e.solver.Solve(ctx, p)
	if err != nil {
		e.countFailure(nil)
		return nil, channel.Report{}, err
	}
	if res.Saturated {
		e.logger.Debugf("pose %v saturates an actuator: %v", res.Pose, res.TravelPositions)
	}

	values := res.Command.Scale(e.cfg.UnitsScale).Slice()
	rep, err := e.channel.Send(ctx, values)
	if err != nil {
		e.countFailure(&rep)
		return res, rep, err
	}

	e.mu.Lock()
	e.moves++
	e.lastReport = &rep
	e.mu.Unlock()

	snap := snapshot.Snapshot{
		Time:      time.Now(),
		Session:   rep.ID,
		Pose:      res.Pose,
		Commands:  values,
		Travel:    res.TravelPositions,
		TopJoints: ik.TopJoints(res.Pose, e.solver.Mechanism()),
		Axes:      ik.Axes(res.Pose, e.solver.Mechanism().TopRadius()),
		Saturated: res.Saturated,
	}
	if err := e.sinks.Record(ctx, snap); err != nil {
		e.logger.Warnf("recording snapshot %s: %v", rep.ID, err)
	}
	return res, rep, nil
}

func (e *Extender) countFailure(rep *channel.Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures++
	if rep != nil {
		e.lastReport = rep
	}
}

// LastSnapshot returns the most recent accepted command.
func (e *Extender) LastSnapshot() (snapshot.Snapshot, bool) {
	return e.recorder.Latest()
}

// SpatialPoseToIK converts a pose in millimeters to the mechanism's inches
// and yaw, pitch, roll. The angles are read back from the rotated axes for
// the mechanism's Rx(roll)·Ry(pitch)·Rz(yaw) order, which differs from the
// z-y-x order of spatialmath.EulerAngles.
func SpatialPoseToIK(p spatialmath.Pose) ik.Pose {
	pt := p.Point()
	yaw, pitch, roll := xyzAngles(p.Orientation())
	return ik.Pose{
		X:     pt.X / mmPerInch,
		Y:     pt.Y / mmPerInch,
		Z:     pt.Z / mmPerInch,
		Yaw:   yaw,
		Pitch: pitch,
		Roll:  roll,
	}
}

// xyzAngles decomposes o as Rx(roll)·Ry(pitch)·Rz(yaw).
func xyzAngles(o spatialmath.Orientation) (yaw, pitch, roll float64) {
	rot := spatialmath.NewPoseFromOrientation(o)
	axis := func(v r3.Vector) r3.Vector {
		return spatialmath.Compose(rot, spatialmath.NewPoseFromPoint(v)).Point()
	}
	x, y, z := axis(r3.Vector{X: 1}), axis(r3.Vector{Y: 1}), axis(r3.Vector{Z: 1})

	// Row 0 is (cp·cy, −cp·sy, sp); column 2 is (sp, −sr·cp, cr·cp).
	pitch = math.Asin(math.Max(-1, math.Min(1, z.X)))
	yaw = math.Atan2(-y.X, x.X)
	roll = math.Atan2(-z.Y, z.Z)
	return yaw, pitch, roll
}

func decodePose(raw interface{}) (ik.Pose, error) {
	var p ik.Pose
	if raw == nil {
		return p, errors.New("missing pose")
	}
	if err := mapstructure.Decode(raw, &p); err != nil {
		return p, errors.Wrap(err, "invalid pose")
	}
	return p, nil
}

func decodeSpatialPose(raw interface{}) (ik.Pose, error) {
	var in struct {
		X     float64 `mapstructure:"x"`
		Y     float64 `mapstructure:"y"`
		Z     float64 `mapstructure:"z"`
		OX    float64 `mapstructure:"o_x"`
		OY    float64 `mapstructure:"o_y"`
		OZ    float64 `mapstructure:"o_z"`
		Theta float64 `mapstructure:"theta"` // degrees
	}
	if raw == nil {
		return ik.Pose{}, errors.New("missing pose")
	}
	if err := mapstructure.Decode(raw, &in); err != nil {
		return ik.Pose{}, errors.Wrap(err, "invalid spatial pose")
	}
	if in.OX == 0 && in.OY == 0 && in.OZ == 0 {
		in.OZ = 1
	}
	pose := spatialmath.NewPose(
		r3.Vector{X: in.X, Y: in.Y, Z: in.Z},
		&spatialmath.OrientationVectorDegrees{OX: in.OX, OY: in.OY, OZ: in.OZ, Theta: in.Theta},
	)
	return SpatialPoseToIK(pose), nil
}

func resultMap(res *ik.Result, scale float64) map[string]interface{} {
	return map[string]interface{}{
		"pose":             res.Pose.Slice(),
		"pose_clamped":     res.PoseClamped,
		"lengths":          res.Lengths[:],
		"travel_positions": res.TravelPositions[:],
		"command":          res.Command.Slice(),
		"transmitted":      res.Command.Scale(scale).Slice(),
		"saturated":        res.Saturated,
	}
}

func reportMap(rep channel.Report) map[string]interface{} {
	return map[string]interface{}{
		"id":          rep.ID,
		"state":       rep.State.String(),
		"sent":        rep.Sent,
		"duration_ms": rep.Duration.Milliseconds(),
	}
}

func snapshotMap(s snapshot.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"time":             s.Time.Format(time.RFC3339Nano),
		"session":          s.Session,
		"pose":             s.Pose.Slice(),
		"commands":         append([]float64(nil), s.Commands...),
		"travel_positions": s.Travel[:],
		"saturated":        s.Saturated,
	}
}

// DoCommand exposes solving and motion outside the generic API.
func (e *Extender) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, errors.New("missing 'command' string")
	}

	switch command {
	case "solve":
		p, err := decodePose(cmd["pose"])
		if err != nil {
			return nil, err
		}
		res, err := e.Solve(ctx, p)
		if err != nil {
			return nil, err
		}
		return resultMap(res, e.cfg.UnitsScale), nil

	case "move_to_pose", "move_to_spatial_pose":
		var (
			p   ik.Pose
			err error
		)
		if command == "move_to_pose" {
			p, err = decodePose(cmd["pose"])
		} else {
			p, err = decodeSpatialPose(cmd["pose"])
		}
		if err != nil {
			return nil, err
		}
		res, rep, err := e.MoveToPose(ctx, p)
		if err != nil {
			return nil, err
		}
		out := resultMap(res, e.cfg.UnitsScale)
		out["report"] = reportMap(rep)
		return out, nil

	case "last_snapshot":
		s, ok := e.LastSnapshot()
		if !ok {
			return map[string]interface{}{"available": false}, nil
		}
		out := snapshotMap(s)
		out["available"] = true
		return out, nil

	case "status":
		return e.status(), nil

	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (e *Extender) status() map[string]interface{} {
	refCount, open, summary := e.registry.Status(e.endpoint)

	e.mu.Lock()
	out := map[string]interface{}{
		"endpoint":  e.endpoint,
		"ref_count": refCount,
		"open":      open,
		"channel":   summary,
		"moves":     e.moves,
		"failures":  e.failures,
	}
	if e.lastReport != nil {
		out["last_report"] = reportMap(*e.lastReport)
	}
	e.mu.Unlock()

	if e.mqtt != nil {
		stats := e.mqtt.Stats()
		out["mqtt"] = map[string]interface{}{
			"connected": stats.Connected,
			"published": stats.Published,
			"errors":    stats.Errors,
		}
	}
	return out
}

// Close releases the channel and closes the snapshot sinks.
func (e *Extender) Close(context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return multierr.Combine(
		e.registry.Release(e.endpoint),
		e.sinks.Close(),
	)
}
