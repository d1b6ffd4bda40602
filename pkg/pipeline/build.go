package pipeline

import (
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/marmos91/chainsnap/pkg/config"
	"github.com/marmos91/chainsnap/pkg/distribution"
	"github.com/marmos91/chainsnap/pkg/distribution/s3target"
	"github.com/marmos91/chainsnap/pkg/distribution/sshtarget"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/lifecycle"
	"github.com/marmos91/chainsnap/pkg/metrics"
	"github.com/marmos91/chainsnap/pkg/publication"
	"github.com/marmos91/chainsnap/pkg/quiescence"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

// NewLocator builds the instance locator from cfg.
func NewLocator(cfg *config.Config) *instance.Locator {
	ports := make([]instance.PortBinding, 0, len(cfg.Locator.Ports))
	for _, p := range cfg.Locator.Ports {
		ports = append(ports, instance.PortBinding{Network: instance.Network(p.Network), Port: p.Port})
	}
	return instance.NewLocator(ports, cfg.Locator.ConfigCandidates, nil)
}

// NewVerifier builds the two-channel quiescence verifier.
func NewVerifier(cfg *config.Config) *quiescence.Verifier {
	classify := quiescence.NewClassifier(cfg.Verifier.QuiescentStatuses...)
	return quiescence.NewVerifier(
		quiescence.NewAPIChannel(cfg.Verifier.APITimeout, classify, nil),
		quiescence.NewCLIChannel(quiescence.CLIOptions{
			Timeout:  cfg.Verifier.CLITimeout,
			Attempts: cfg.Verifier.CLIAttempts,
			Delay:    cfg.Verifier.CLIDelay,
		}, classify, nil),
	)
}

// NewController builds a lifecycle controller for one instance.
func NewController(cfg *config.Config) *lifecycle.Controller {
	return lifecycle.NewController(lifecycle.Options{
		PollInterval:  cfg.Lifecycle.PollInterval,
		ForceKill:     cfg.Lifecycle.ForceKill,
		KillGrace:     cfg.Lifecycle.KillGrace,
		StartTimeout:  cfg.Lifecycle.StartTimeout,
		SessionPrefix: cfg.Lifecycle.SessionPrefix,
	}, lifecycle.UnixSignaller{}, lifecycle.Tmux{Binary: cfg.Lifecycle.TmuxBinary}, lifecycle.TCPProber{})
}

// NewPackager builds the snapshot packager.
func NewPackager(cfg *config.Config) *snapshot.Packager {
	return snapshot.NewPackager(snapshot.Options{
		StagingDir:        cfg.Publication.StagingDir,
		FilePrefix:        cfg.Publication.FilePrefix,
		TransientPatterns: cfg.Publication.TransientPatterns,
		MinFreeSpace:      cfg.Publication.MinFreeSpace,
	})
}

// NewPublisher builds the local publisher.
func NewPublisher(cfg *config.Config) (*publication.Publisher, error) {
	opts := publication.Options{
		Root:       cfg.Publication.Root,
		FilePrefix: cfg.Publication.FilePrefix,
		Owner:      cfg.Publication.Owner,
		Group:      cfg.Publication.Group,
		Keep:       cfg.Publication.Keep,
	}
	var err error
	if cfg.Publication.FileMode != "" {
		if opts.FileMode, err = config.ParseFileMode(cfg.Publication.FileMode); err != nil {
			return nil, err
		}
	}
	if cfg.Publication.DirMode != "" {
		if opts.DirMode, err = config.ParseFileMode(cfg.Publication.DirMode); err != nil {
			return nil, err
		}
	}
	return publication.NewPublisher(opts), nil
}

// NewTarget builds the network-scoped target for t.
func NewTarget(t config.TargetConfig, n instance.Network) (distribution.Target, error) {
	switch t.Kind {
	case sshtarget.Kind:
		return sshtarget.New(sshtarget.Config{
			Name:            t.Name,
			Host:            t.SSH.Host,
			Port:            t.SSH.Port,
			User:            t.SSH.User,
			KeyPath:         t.SSH.KeyPath,
			KnownHostsPath:  t.SSH.KnownHostsPath,
			InsecureHostKey: t.SSH.InsecureHostKey,
			Dir:             path.Join(t.SSH.RemoteDir, string(n)),
			Owner:           t.SSH.Owner,
			ConnectTimeout:  t.SSH.ConnectTimeout,
		}, nil), nil
	case s3target.Kind:
		return s3target.New(s3target.Config{
			Name:            t.Name,
			Bucket:          t.S3.Bucket,
			Prefix:          path.Join(t.S3.Prefix, string(n)),
			Region:          t.S3.Region,
			Endpoint:        t.S3.Endpoint,
			AccessKeyID:     t.S3.AccessKeyID,
			SecretAccessKey: t.S3.SecretAccessKey,
			ForcePathStyle:  t.S3.ForcePathStyle,
		}, nil), nil
	default:
		return nil, fmt.Errorf("target %q: unsupported kind %q", t.Name, t.Kind)
	}
}

// TargetsFor returns a factory of the enabled targets, scoped to a network.
func TargetsFor(cfg *config.Config) func(n instance.Network) ([]distribution.Target, error) {
	return func(n instance.Network) ([]distribution.Target, error) {
		var out []distribution.Target
		for _, tc := range cfg.EnabledTargets() {
			t, err := NewTarget(tc, n)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	}
}

// Build wires a Pipeline from cfg. store may be nil.
func Build(cfg *config.Config, store Recorder, networks []instance.Network) (*Pipeline, error) {
	pub, err := NewPublisher(cfg)
	if err != nil {
		return nil, err
	}

	// The runner's connect bound must not undercut any target's own.
	var connectTimeout time.Duration
	for _, t := range cfg.EnabledTargets() {
		if t.SSH.ConnectTimeout > connectTimeout {
			connectTimeout = t.SSH.ConnectTimeout
		}
	}

	opts := Options{
		StateDir:          cfg.StateDir,
		StopTimeout:       cfg.Lifecycle.StopTimeout,
		ReloadStopTimeout: cfg.Lifecycle.ReloadStopTimeout,
		Networks:          networks,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsTextfile = filepath.Clean(cfg.Metrics.TextfilePath)
	}

	deps := Deps{
		Locator:     NewLocator(cfg),
		Verifier:    NewVerifier(cfg),
		Controller:  func() Controller { return NewController(cfg) },
		Packager:    NewPackager(cfg),
		Publisher:   pub,
		Distributor: distribution.NewRunner(pub, connectTimeout),
		Targets:     TargetsFor(cfg),
		History:     store,
		Metrics:     metrics.NewRunMetrics(),
	}
	return New(opts, deps), nil
}
