// Package broker implements the worker's side of the broker contract: fetch
// pending activations, report their outcome and produce new ones.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	apperrors "github.com/louisbranch/taskworker/internal/platform/errors"
	platformgrpc "github.com/louisbranch/taskworker/internal/platform/grpc"
	"github.com/louisbranch/taskworker/internal/platform/timeouts"
	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Options configures a Client.
type Options struct {
	// Namespace restricts fetches to one namespace. Empty fetches any.
	Namespace string
	// Host identifies this worker in fetches and reports.
	Host string
	// FetchTimeout bounds one FetchTask call.
	FetchTimeout time.Duration
	// ReportTimeout bounds one SetTaskStatus call.
	ReportTimeout time.Duration
}

// ReportOutcome describes a result delivery. Err is a
// *domain.ReportDeliveryError when Delivered is false.
type ReportOutcome struct {
	Delivered bool
	Err       error
}

// Client talks to the broker consumer service.
type Client struct {
	conn   gogrpc.ClientConnInterface
	closer io.Closer
	addr   string
	opts   Options
}

var _ domain.Producer = (*Client)(nil)

// New wraps an existing connection.
func New(conn gogrpc.ClientConnInterface, addr string, opts Options) *Client {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = timeouts.GRPCRequest
	}
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = timeouts.Report
	}
	c := &Client{conn: conn, addr: addr, opts: opts}
	if closer, ok := conn.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// Dial connects to the broker at addr and waits for its health service to
// report SERVING within dialTimeout.
func Dial(ctx context.Context, addr string, dialTimeout time.Duration, logf func(string, ...any), opts Options, dialOpts ...gogrpc.DialOption) (*Client, error) {
	all := append(platformgrpc.DefaultClientDialOptions(), dialOpts...)
	conn, err := platformgrpc.DialWithHealth(ctx, nil, addr, dialTimeout, logf, all...)
	if err != nil {
		return nil, &domain.BrokerUnavailableError{Addr: addr, Err: err}
	}
	return New(conn, addr, opts), nil
}

// Addr returns the broker address.
func (c *Client) Addr() string { return c.addr }

// Host returns the worker identity sent with requests.
func (c *Client) Host() string { return c.opts.Host }

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// FetchTask asks for one pending activation. It returns (nil, nil) when the
// broker has nothing to hand out, the context error when ctx ends, and a
// *domain.BrokerUnavailableError for any other failure.
func (c *Client) FetchTask(ctx context.Context, maxTaskCount int) (*domain.Activation, error) {
	if maxTaskCount < 1 {
		maxTaskCount = 1
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	req := &FetchTaskRequest{
		Namespace:    c.opts.Namespace,
		MaxTaskCount: int32(maxTaskCount),
		Host:         c.opts.Host,
	}
	resp := new(FetchTaskResponse)
	if err := c.conn.Invoke(callCtx, fetchTaskMethod, req, resp, platformgrpc.CBORCallOption()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, &domain.BrokerUnavailableError{Addr: c.addr, Err: err}
	}
	if resp.Activation == nil {
		return nil, nil
	}
	activation := ActivationFromMessage(*resp.Activation)
	return &activation, nil
}

// ReportResult delivers result, bounded by the report timeout. Failures are
// returned in the outcome for logging and are never retried here; the
// broker's lease expiry redelivers the activation.
func (c *Client) ReportResult(ctx context.Context, result domain.ProcessingResult) ReportOutcome {
	if result.Host == "" {
		result.Host = c.opts.Host
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.ReportTimeout)
	defer cancel()

	req := ResultToRequest(result)
	if err := c.conn.Invoke(callCtx, setTaskStatusMethod, &req, new(SetTaskStatusResponse), platformgrpc.CBORCallOption()); err != nil {
		return ReportOutcome{Err: &domain.ReportDeliveryError{TaskID: result.TaskID, Err: err}}
	}
	return ReportOutcome{Delivered: true}
}

// Produce submits activation on topic.
func (c *Client) Produce(ctx context.Context, topic string, activation domain.Activation) error {
	if topic == "" {
		return apperrors.New(apperrors.CodeInvalidActivation, "topic is required")
	}
	req := &ProduceTaskRequest{Topic: topic, Activation: ActivationToMessage(activation)}
	if err := c.conn.Invoke(ctx, produceTaskMethod, req, new(ProduceTaskResponse), platformgrpc.CBORCallOption()); err != nil {
		if code := apperrors.CodeFromGRPCStatus(err); code != apperrors.CodeUnknown {
			return apperrors.Wrap(code, fmt.Sprintf("produce %s", activation.FullName()), err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &domain.BrokerUnavailableError{Addr: c.addr, Err: err}
	}
	return nil
}
