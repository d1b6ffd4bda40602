package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/internal/telemetry"
	"github.com/marmos91/chainsnap/pkg/distribution"
	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/metrics"
	"github.com/marmos91/chainsnap/pkg/publication"
	"github.com/marmos91/chainsnap/pkg/quiescence"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

// Stage names used for log fields, spans and metrics.
const (
	StageLocate     = "locate"
	StageVerify     = "verify"
	StagePreflight  = "preflight"
	StageStop       = "stop"
	StagePreclean   = "preclean"
	StagePackage    = "package"
	StagePublish    = "publish"
	StageStart      = "start"
	StageDistribute = "distribute"
)

// Locator finds the running instances.
type Locator interface {
	LocateAll(ctx context.Context) ([]instance.ServiceInstance, map[instance.Network]error, error)
}

// Verifier confirms an instance is safe to read.
type Verifier interface {
	Verify(ctx context.Context, inst instance.ServiceInstance) (quiescence.Result, error)
}

// Controller stops and restarts one instance.
type Controller interface {
	Stop(ctx context.Context, inst instance.ServiceInstance, timeout time.Duration) error
	Start(ctx context.Context, inst instance.ServiceInstance) error
}

// Packager builds the archive of a stopped instance.
type Packager interface {
	Preflight(inst instance.ServiceInstance) error
	Preclean(ctx context.Context, inst instance.ServiceInstance) ([]string, error)
	Package(ctx context.Context, inst instance.ServiceInstance) (snapshot.Artifact, error)
}

// Publisher owns the local publication directories.
type Publisher interface {
	Dir(n instance.Network) string
	Begin(ctx context.Context, n instance.Network, message string) error
	Publish(ctx context.Context, art snapshot.Artifact) (snapshot.Artifact, error)
}

// Distributor mirrors a network's publication to remote targets.
type Distributor interface {
	Distribute(ctx context.Context, n instance.Network, targets []distribution.Target) (distribution.Report, error)
}

// Recorder persists run records. *history.Store implements it.
type Recorder interface {
	Begin(ctx context.Context, run *history.Run) error
	Finish(ctx context.Context, run *history.Run) error
}

// Deps are the collaborators of a Pipeline. History and Metrics are
// optional.
type Deps struct {
	Locator     Locator
	Verifier    Verifier
	Controller  func() Controller
	Packager    Packager
	Publisher   Publisher
	Distributor Distributor
	Targets     func(n instance.Network) ([]distribution.Target, error)
	History     Recorder
	Metrics     *metrics.RunMetrics
}

// Options tunes a Pipeline.
type Options struct {
	StateDir          string
	StopTimeout       time.Duration
	ReloadStopTimeout time.Duration
	// Networks restricts the run. Empty means every network.
	Networks []instance.Network
	// MetricsTextfile, when set, receives the registry after every run.
	MetricsTextfile string
}

// Pipeline executes actions.
type Pipeline struct {
	opts  Options
	deps  Deps
	now   func() time.Time
	newID func() string
}

// New creates a Pipeline.
func New(opts Options, deps Deps) *Pipeline {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 180 * time.Second
	}
	if opts.ReloadStopTimeout <= 0 {
		opts.ReloadStopTimeout = 30 * time.Second
	}
	return &Pipeline{
		opts:  opts,
		deps:  deps,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Run takes the run lock, opens the run log and dispatches action. The
// summary is always returned; the error is the fatal failure, if any.
func (p *Pipeline) Run(ctx context.Context, action Action) (*Summary, error) {
	started := p.now().UTC()
	sum := &Summary{RunID: p.newID(), Action: action, StartedAt: started}

	lock, err := AcquireLock(filepath.Join(p.opts.StateDir, LockName))
	if err != nil {
		if errors.Is(err, ErrLocked) {
			logger.Warn("another run holds the lock, exiting", logger.KeyAction, action, logger.KeyError, err)
			rec := p.newRecord(action, "")
			p.finish(ctx, rec, history.ResultLocked, err)
			sum.Runs = append(sum.Runs, *rec)
		}
		sum.Err = err
		return sum, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release run lock", logger.KeyError, err)
		}
	}()

	sum.LogPath = p.openRunLog(action, sum.RunID, started)
	if sum.LogPath != "" {
		defer func() { _ = logger.RemoveTee() }()
	}

	ctx, span := telemetry.StartRunSpan(ctx, sum.RunID, action.String())
	defer span.End()

	rc := logger.NewRunContext(sum.RunID, action.String()).WithTrace(telemetry.TraceID(ctx))
	ctx = logger.WithContext(ctx, rc)
	logger.InfoCtx(ctx, "run started", logger.KeyPath, sum.LogPath)

	err = p.dispatch(ctx, action, sum)
	sum.Err = err
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "run failed", logger.KeyError, err, logger.KeyDurationMs, logger.Duration(started))
	} else {
		logger.InfoCtx(ctx, "run finished", "result", sum.Result(), logger.KeyDurationMs, logger.Duration(started))
	}
	span.SetAttributes(telemetry.Result(string(sum.Result())))

	if p.opts.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(p.opts.MetricsTextfile); werr != nil {
			logger.WarnCtx(ctx, "failed to write metrics textfile", logger.KeyPath, p.opts.MetricsTextfile, logger.KeyError, werr)
		}
	}
	return sum, err
}

// dispatch maps every Action to its flow.
func (p *Pipeline) dispatch(ctx context.Context, action Action, sum *Summary) error {
	switch action {
	case ActionPublish:
		return p.forEachInstance(ctx, action, sum, p.publish)
	case ActionRun:
		return p.forEachInstance(ctx, action, sum, p.publishAndDistribute)
	case ActionRestart:
		return p.forEachInstance(ctx, action, sum, p.restart)
	case ActionDistribute:
		return p.distributeAll(ctx, sum)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func (p *Pipeline) openRunLog(action Action, runID string, started time.Time) string {
	if p.opts.StateDir == "" {
		return ""
	}
	path := RunLogPath(p.opts.StateDir, action, runID, started)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		logger.Warn("failed to create run log directory", logger.KeyError, err)
		return ""
	}
	if err := logger.AddTee(path); err != nil {
		logger.Warn("failed to open run log", logger.KeyError, err)
		return ""
	}
	return path
}

// wanted reports whether n is within the configured network filter.
func (p *Pipeline) wanted(n instance.Network) bool {
	if len(p.opts.Networks) == 0 {
		return true
	}
	for _, w := range p.opts.Networks {
		if w == n {
			return true
		}
	}
	return false
}

type instanceFlow func(ctx context.Context, inst instance.ServiceInstance, rec *history.Run, sum *Summary) error

// forEachInstance locates the instances and runs flow on each in turn. A
// fatal error stops the loop.
func (p *Pipeline) forEachInstance(ctx context.Context, action Action, sum *Summary, flow instanceFlow) error {
	var found []instance.ServiceInstance
	err := p.stage(ctx, StageLocate, func(ctx context.Context) error {
		var skipped map[instance.Network]error
		var err error
		found, skipped, err = p.deps.Locator.LocateAll(ctx)
		for n, serr := range skipped {
			logger.WarnCtx(ctx, "network skipped", logger.KeyNetwork, n, logger.KeyError, serr)
		}
		return err
	})
	if err != nil {
		return err
	}

	var todo []instance.ServiceInstance
	for _, inst := range found {
		if p.wanted(inst.Network) {
			todo = append(todo, inst)
		}
	}
	if len(todo) == 0 {
		logger.InfoCtx(ctx, "no running instance found, nothing to do")
		rec := p.newRecord(action, "")
		p.finish(ctx, rec, history.ResultSkipped, nil)
		sum.Runs = append(sum.Runs, *rec)
		return nil
	}

	for _, inst := range todo {
		ictx := logger.WithContext(ctx, logger.FromContext(ctx).WithNetwork(string(inst.Network)))
		logger.InfoCtx(ictx, "instance located",
			logger.KeyRetention, inst.Retention, logger.KeyPID, inst.PID, logger.KeyDataDir, inst.DataDir)

		rec := p.newRecord(action, inst.Network)
		rec.Retention = string(inst.Retention)
		p.begin(ictx, rec)

		err := flow(ictx, inst, rec, sum)
		result := history.ResultSuccess
		switch {
		case err != nil:
			result = history.ResultFailed
		case len(rec.Targets) > 0 && hasFailedTarget(rec.Targets):
			result = history.ResultPartial
		}
		p.finish(ictx, rec, result, err)
		sum.Runs = append(sum.Runs, *rec)
		if err != nil {
			return err
		}
	}
	return nil
}

// publish is the snapshot flow: verify, stop, package, publish locally and
// restart. Once the node is stopped it is restarted whatever happens next.
func (p *Pipeline) publish(ctx context.Context, inst instance.ServiceInstance, rec *history.Run, sum *Summary) error {
	err := p.stage(ctx, StageVerify, func(ctx context.Context) error {
		_, err := p.deps.Verifier.Verify(ctx, inst)
		return err
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, StagePreflight, func(ctx context.Context) error {
		return p.deps.Packager.Preflight(inst)
	})
	if err != nil {
		return err
	}

	ctrl := p.deps.Controller()
	stopped := p.now()
	err = p.stage(ctx, StageStop, func(ctx context.Context) error {
		return ctrl.Stop(ctx, inst, p.opts.StopTimeout)
	})
	if err != nil {
		return err
	}

	art, err := p.packageStopped(ctx, inst)

	// The node comes back even when the run was cancelled.
	p.start(context.WithoutCancel(ctx), ctrl, inst)
	p.deps.Metrics.SetDowntime(string(inst.Network), p.now().Sub(stopped))

	if err != nil {
		return err
	}

	rec.ArchiveName = art.Name
	rec.ArchiveSize = art.SizeBytes
	rec.SHA256 = art.SHA256
	p.deps.Metrics.SetArchiveSize(string(art.Network), string(art.Retention), art.SizeBytes)
	sum.Artifacts = append(sum.Artifacts, art)
	return nil
}

// packageStopped runs every stage that needs the node stopped. The marker
// goes in progress first and stays that way if anything fails.
func (p *Pipeline) packageStopped(ctx context.Context, inst instance.ServiceInstance) (snapshot.Artifact, error) {
	err := p.stage(ctx, StagePublish, func(ctx context.Context) error {
		msg := fmt.Sprintf("%s %s snapshot in progress", inst.Network, inst.Retention)
		return p.deps.Publisher.Begin(ctx, inst.Network, msg)
	})
	if err != nil {
		return snapshot.Artifact{}, err
	}

	err = p.stage(ctx, StagePreclean, func(ctx context.Context) error {
		removed, err := p.deps.Packager.Preclean(ctx, inst)
		if len(removed) > 0 {
			logger.InfoCtx(ctx, "removed transient files", logger.KeyFiles, len(removed))
		}
		return err
	})
	if err != nil {
		return snapshot.Artifact{}, err
	}

	var staged snapshot.Artifact
	err = p.stage(ctx, StagePackage, func(ctx context.Context) error {
		var err error
		staged, err = p.deps.Packager.Package(ctx, inst)
		return err
	})
	if err != nil {
		return snapshot.Artifact{}, err
	}

	var published snapshot.Artifact
	err = p.stage(ctx, StagePublish, func(ctx context.Context) error {
		var err error
		published, err = p.deps.Publisher.Publish(ctx, staged)
		return err
	})
	return published, err
}

// start relaunches the node. Failures are warnings.
func (p *Pipeline) start(ctx context.Context, ctrl Controller, inst instance.ServiceInstance) {
	_ = p.stage(ctx, StageStart, func(ctx context.Context) error {
		err := ctrl.Start(ctx, inst)
		if err != nil {
			logger.ErrorCtx(ctx, "INSTANCE NOT CONFIRMED RUNNING, check it manually",
				logger.KeyBinary, inst.BinaryPath, logger.KeyError, err)
		}
		return err
	})
}

// publishAndDistribute publishes locally, then mirrors the fresh
// publication to the network's targets once the node is back up.
func (p *Pipeline) publishAndDistribute(ctx context.Context, inst instance.ServiceInstance, rec *history.Run, sum *Summary) error {
	if err := p.publish(ctx, inst, rec, sum); err != nil {
		return err
	}
	_, err := p.distribute(ctx, inst.Network, rec, sum)
	return err
}

// restart is the reload flow: a short graceful stop then a relaunch.
func (p *Pipeline) restart(ctx context.Context, inst instance.ServiceInstance, _ *history.Run, _ *Summary) error {
	ctrl := p.deps.Controller()
	err := p.stage(ctx, StageStop, func(ctx context.Context) error {
		return ctrl.Stop(ctx, inst, p.opts.ReloadStopTimeout)
	})
	if err != nil {
		return err
	}
	p.start(context.WithoutCancel(ctx), ctrl, inst)
	return nil
}

// distributeAll mirrors every network that has a local publication.
func (p *Pipeline) distributeAll(ctx context.Context, sum *Summary) error {
	var networks []instance.Network
	for _, n := range instance.Networks() {
		if p.wanted(n) {
			networks = append(networks, n)
		}
	}

	var ran bool
	for _, n := range networks {
		nctx := logger.WithContext(ctx, logger.FromContext(ctx).WithNetwork(string(n)))
		if _, err := publication.ReadMarker(p.deps.Publisher.Dir(n)); errors.Is(err, publication.ErrNoMarker) {
			logger.DebugCtx(nctx, "network never published, skipping")
			continue
		}

		rec := p.newRecord(ActionDistribute, n)
		p.begin(nctx, rec)
		attempted, err := p.distribute(nctx, n, rec, sum)
		if !attempted && err == nil {
			p.discard(nctx, rec)
			continue
		}
		ran = true

		result := history.ResultSuccess
		switch {
		case err != nil:
			result = history.ResultFailed
		case hasFailedTarget(rec.Targets):
			result = history.ResultPartial
		}
		p.finish(nctx, rec, result, err)
		sum.Runs = append(sum.Runs, *rec)
		if err != nil {
			return err
		}
	}

	if !ran {
		logger.InfoCtx(ctx, "nothing to distribute")
		rec := p.newRecord(ActionDistribute, "")
		p.finish(ctx, rec, history.ResultSkipped, nil)
		sum.Runs = append(sum.Runs, *rec)
	}
	return nil
}

// distribute mirrors n to its enabled targets. It reports false when n has
// no targets.
func (p *Pipeline) distribute(ctx context.Context, n instance.Network, rec *history.Run, sum *Summary) (bool, error) {
	if p.deps.Targets == nil || p.deps.Distributor == nil {
		return false, nil
	}
	targets, err := p.deps.Targets(n)
	if err != nil {
		return true, fmt.Errorf("failed to build targets: %w", err)
	}
	if len(targets) == 0 {
		logger.InfoCtx(ctx, "no enabled distribution targets")
		return false, nil
	}

	var report distribution.Report
	err = p.stage(ctx, StageDistribute, func(ctx context.Context) error {
		var err error
		report, err = p.deps.Distributor.Distribute(ctx, n, targets)
		return err
	})

	for _, o := range report.Outcomes {
		p.deps.Metrics.ObserveTarget(o.Target, o.Kind, o.OK(), o.Duration)
		rec.Targets = append(rec.Targets, history.TargetOutcome{
			Target:     o.Target,
			Kind:       o.Kind,
			Success:    o.OK(),
			Uploaded:   len(o.Uploaded),
			Pruned:     len(o.Pruned),
			Error:      o.Error,
			DurationMs: o.Duration.Milliseconds(),
		})
	}
	if len(report.Outcomes) > 0 {
		sum.Reports = append(sum.Reports, report)
		if len(report.Failed()) > 0 {
			logger.WarnCtx(ctx, "distribution finished with failures", "summary", report.Summary())
		} else {
			logger.InfoCtx(ctx, "distribution finished", "summary", report.Summary())
		}
	}
	return true, err
}

// stage runs fn with stage-scoped logging, a span and a duration metric.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx = logger.Stage(ctx, name)
	ctx, span := telemetry.StartStageSpan(ctx, name)
	defer span.End()

	start := p.now()
	err := fn(ctx)
	p.deps.Metrics.ObserveStage(name, p.now().Sub(start))
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "stage failed", logger.KeyError, err)
	}
	return err
}

func (p *Pipeline) newRecord(action Action, n instance.Network) *history.Run {
	return &history.Run{
		ID:        p.newID(),
		Action:    action.String(),
		Network:   string(n),
		LogPath:   logger.TeePath(),
		StartedAt: p.now().UTC(),
	}
}

func (p *Pipeline) begin(ctx context.Context, rec *history.Run) {
	if p.deps.History == nil {
		return
	}
	if err := p.deps.History.Begin(ctx, rec); err != nil {
		logger.WarnCtx(ctx, "failed to record run start", logger.KeyError, err)
	}
}

// discard closes a record for a network that turned out to need no work.
func (p *Pipeline) discard(ctx context.Context, rec *history.Run) {
	rec.Result = history.ResultSkipped
	rec.FinishedAt = p.now().UTC()
	if p.deps.History == nil {
		return
	}
	if err := p.deps.History.Finish(ctx, rec); err != nil {
		logger.WarnCtx(ctx, "failed to record run", logger.KeyError, err)
	}
}

func (p *Pipeline) finish(ctx context.Context, rec *history.Run, result history.Result, err error) {
	rec.Result = result
	rec.FinishedAt = p.now().UTC()
	if err != nil {
		rec.Error = err.Error()
	}
	p.deps.Metrics.ObserveRun(rec.Action, rec.Network, string(result), rec.Duration(), rec.FinishedAt)

	if p.deps.History == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = p.newID()
	}
	// Records created without Begin are inserted by Finish's Save.
	if ferr := p.deps.History.Finish(ctx, rec); ferr != nil {
		logger.WarnCtx(ctx, "failed to record run", logger.KeyError, ferr)
	}
}

func hasFailedTarget(ts []history.TargetOutcome) bool {
	for _, t := range ts {
		if !t.Success {
			return true
		}
	}
	return false
}
