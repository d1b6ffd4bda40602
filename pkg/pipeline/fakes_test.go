package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/quiescence"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

type fakeLocator struct {
	found []instance.ServiceInstance
	err   error
}

func (f fakeLocator) LocateAll(context.Context) ([]instance.ServiceInstance, map[instance.Network]error, error) {
	return f.found, nil, f.err
}

type fakeVerifier struct{ err error }

func (f fakeVerifier) Verify(context.Context, instance.ServiceInstance) (quiescence.Result, error) {
	return quiescence.Result{}, f.err
}

// fakeController records the calls of every controller it hands out.
type fakeController struct {
	stopErr  error
	startErr error

	calls        []string
	stopTimeout  time.Duration
	startCtxErr  error
	startedCount int
}

func (c *fakeController) Stop(_ context.Context, _ instance.ServiceInstance, timeout time.Duration) error {
	c.calls = append(c.calls, "stop")
	c.stopTimeout = timeout
	return c.stopErr
}

func (c *fakeController) Start(ctx context.Context, _ instance.ServiceInstance) error {
	c.calls = append(c.calls, "start")
	c.startCtxErr = ctx.Err()
	c.startedCount++
	return c.startErr
}

// slowNode exits a fixed delay after SIGTERM.
type slowNode struct {
	mu       sync.Mutex
	exitIn   time.Duration
	termedAt time.Time
	launched []string
}

func (n *slowNode) Signal(_ int, sig syscall.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sig == syscall.SIGTERM && n.termedAt.IsZero() {
		n.termedAt = time.Now()
	}
	return nil
}

func (n *slowNode) Alive(int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.termedAt.IsZero() || time.Since(n.termedAt) < n.exitIn
}

func (n *slowNode) Kill(context.Context, string) error { return nil }

func (n *slowNode) Launch(_ context.Context, name, _ string, _ []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.launched = append(n.launched, name)
	return nil
}

func (n *slowNode) Listening(context.Context, int) bool { return true }

// fakePackager stages a tiny artifact without touching a real data dir.
type fakePackager struct {
	staging      string
	preflightErr error
	packageFn    func(ctx context.Context) error

	precleaned bool
	packaged   bool
}

func (p *fakePackager) Preflight(instance.ServiceInstance) error { return p.preflightErr }

func (p *fakePackager) Preclean(context.Context, instance.ServiceInstance) ([]string, error) {
	p.precleaned = true
	return nil, nil
}

func (p *fakePackager) Package(ctx context.Context, inst instance.ServiceInstance) (snapshot.Artifact, error) {
	if p.packageFn != nil {
		if err := p.packageFn(ctx); err != nil {
			return snapshot.Artifact{}, err
		}
	}
	if err := os.MkdirAll(p.staging, 0755); err != nil {
		return snapshot.Artifact{}, err
	}

	name := snapshot.ArchiveBase("grin", inst.Network, inst.Retention, day) + snapshot.ArchiveExt
	art := snapshot.Artifact{
		Name:         name,
		ArchivePath:  filepath.Join(p.staging, name),
		ChecksumPath: filepath.Join(p.staging, snapshot.ChecksumName(name)),
		GuidePath:    filepath.Join(p.staging, snapshot.GuideName),
		CreatedAt:    day,
		Network:      inst.Network,
		Retention:    inst.Retention,
	}
	if err := os.WriteFile(art.ArchivePath, []byte("chain data"), 0600); err != nil {
		return snapshot.Artifact{}, err
	}
	digest, err := snapshot.HashFile(art.ArchivePath)
	if err != nil {
		return snapshot.Artifact{}, err
	}
	art.SHA256 = digest
	art.SizeBytes = int64(len("chain data"))
	if err := os.WriteFile(art.ChecksumPath, snapshot.FormatChecksum(digest, name), 0600); err != nil {
		return snapshot.Artifact{}, err
	}
	if err := os.WriteFile(art.GuidePath, []byte("guide"), 0600); err != nil {
		return snapshot.Artifact{}, err
	}
	p.packaged = true
	return art, nil
}

// memRecorder keeps finished runs in memory.
type memRecorder struct {
	mu   sync.Mutex
	runs map[string]history.Run
}

func newMemRecorder() *memRecorder { return &memRecorder{runs: map[string]history.Run{}} }

func (r *memRecorder) Begin(_ context.Context, run *history.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.Result = history.ResultRunning
	r.runs[run.ID] = *run
	return nil
}

func (r *memRecorder) Finish(_ context.Context, run *history.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *memRecorder) all() []history.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]history.Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Network < out[j].Network })
	return out
}

// remoteDir is a distribution.Target backed by a map.
type remoteDir struct {
	name       string
	connectErr error

	mu    sync.Mutex
	files map[string][]byte
}

func newRemoteDir(name string) *remoteDir {
	return &remoteDir{name: name, files: map[string][]byte{}}
}

func (d *remoteDir) Name() string { return d.name }
func (d *remoteDir) Kind() string { return "mem" }

func (d *remoteDir) Connect(context.Context) error   { return d.connectErr }
func (d *remoteDir) Close() error                    { return nil }
func (d *remoteDir) EnsureDir(context.Context) error { return nil }

func (d *remoteDir) List(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	for n := range d.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (d *remoteDir) ReadFile(_ context.Context, name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.files[name], nil
}

func (d *remoteDir) Put(_ context.Context, name string, r io.Reader, _ int64) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = buf.Bytes()
	return nil
}

func (d *remoteDir) Remove(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, name)
	return nil
}

func (d *remoteDir) FixOwnership(context.Context) error { return nil }
