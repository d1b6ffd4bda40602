package quiescence

import (
	"context"
	"time"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/nodeapi"
)

// StatusFunc fetches the node status over the admin API.
type StatusFunc func(ctx context.Context, inst instance.ServiceInstance, timeout time.Duration) (nodeapi.Status, error)

// APIChannel asks the owner API for get_status.
type APIChannel struct {
	timeout  time.Duration
	classify Classifier
	status   StatusFunc
}

// NewAPIChannel creates the admin API channel. A nil fn uses the real client.
func NewAPIChannel(timeout time.Duration, classify Classifier, fn StatusFunc) *APIChannel {
	if fn == nil {
		fn = adminStatus
	}
	return &APIChannel{timeout: timeout, classify: classify, status: fn}
}

func (c *APIChannel) Name() string { return "api" }

func (c *APIChannel) Probe(ctx context.Context, inst instance.ServiceInstance) (State, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	st, err := c.status(ctx, inst, c.timeout)
	if err != nil {
		return Unknown, "", err
	}
	logger.DebugCtx(ctx, "admin API status",
		logger.KeyHeight, st.Tip.Height, logger.KeyPeers, st.Connections)
	return c.classify.Classify(st.SyncStatus), st.SyncStatus, nil
}

func adminStatus(ctx context.Context, inst instance.ServiceInstance, timeout time.Duration) (nodeapi.Status, error) {
	secret, err := nodeapi.ReadSecret(inst.APISecretPath)
	if err != nil {
		return nodeapi.Status{}, err
	}
	return nodeapi.New(inst.AdminPort, secret, timeout).Status(ctx)
}
