// Package driver defines the transport-neutral contract between the
// server and each client identity: a symmetric, connection-like channel
// carrying frames over four logical lanes (heartbeat, job, transfer,
// return), plus the retry/backoff policy every concrete driver inherits.
//
// Grounded on the original source's directord/drivers/__init__.py
// (BaseDriver: a handful of control-byte constants shared by every
// transport) and on imagvfx-coco's worker.go, which shows the shape a
// concrete transport takes (dial, build a typed request, send, translate
// errors) that every Driver implementation below follows.
package driver

import (
	"context"
	"errors"
	"time"
)

// Channel identifies one of the four logical, independent in-flight
// queues multiplexed over a Driver's physical connection.
type Channel int

const (
	Heartbeat Channel = iota
	Job
	Transfer
	Return
)

func (c Channel) String() string {
	switch c {
	case Heartbeat:
		return "heartbeat"
	case Job:
		return "job"
	case Transfer:
		return "transfer"
	case Return:
		return "return"
	default:
		return "unknown"
	}
}

// ControlFlag marks a frame's purpose within its channel, mirroring the
// single-byte control codes in models.py/drivers/__init__.py (job_end,
// job_failed, job_processing, heartbeat_notice, transfer_start, ...).
type ControlFlag int

const (
	FlagNone ControlFlag = iota
	FlagJobAck
	FlagJobProcessing
	FlagJobEnd
	FlagJobFailed
	FlagHeartbeatNotice
	FlagTransferStart
	FlagTransferEnd
)

// Message is the logical frame passed between coordinator/client worker
// and a concrete Driver. It carries every field spec.md §4.1 requires:
// message_id, control_flags, command, data, info, stderr, stdout,
// identity, job_sha.
type Message struct {
	MessageID    string
	Channel      Channel
	ControlFlags ControlFlag
	Command      string
	Data         []byte
	Info         []byte
	Stdout       []byte
	Stderr       []byte
	Identity     string
	JobSha       string
}

// ErrTimeout is returned by Receive/HeartbeatRecv when no frame arrives
// before the context deadline.
var ErrTimeout = errors.New("driver: receive timeout")

// ErrClosed is returned when the channel has been torn down.
var ErrClosed = errors.New("driver: channel closed")

// ErrUndeliverable is returned by Send once the bounded retry policy in
// SendWithRetry has exhausted its attempts.
var ErrUndeliverable = errors.New("driver: frame undeliverable after retries")

// Driver is the minimal sufficient contract a transport plug-in must
// satisfy to support both the server coordinator and the client worker.
// A concrete Driver may be session-oriented or datagram-oriented; callers
// make no assumption beyond this interface.
type Driver interface {
	// Bind starts the server side of the driver, listening for client
	// connections. It blocks until ctx is canceled, at which point it
	// tears down every resource it acquired.
	Bind(ctx context.Context, config Config) error

	// Connect starts the client side of the driver, establishing a
	// channel to the server. It blocks until ctx is canceled.
	Connect(ctx context.Context, config Config) error

	// Send transmits a single frame to identity. On the server side,
	// identity addresses a specific client; on the client side, identity
	// is the client's own identity and frames are addressed to the
	// server.
	Send(ctx context.Context, identity string, msg Message) error

	// Receive blocks until a frame arrives on channel, ctx is canceled,
	// or the connection is torn down.
	Receive(ctx context.Context, channel Channel) (Message, error)

	// HeartbeatSend and HeartbeatRecv are a convenience pair so callers
	// do not need to construct a Message by hand for the best-effort,
	// lossy heartbeat lane.
	HeartbeatSend(ctx context.Context, identity string, payload []byte) error
	HeartbeatRecv(ctx context.Context) (identity string, payload []byte, err error)
}

// Config carries the driver-specific bind/connect parameters. Concrete
// drivers read only the fields they understand; unused fields are
// ignored, matching the original source's per-driver args.* access
// pattern (drivers/grpcd.py, drivers/zmq.py each read only the config
// keys relevant to themselves).
type Config struct {
	BindAddress    string
	ServerAddress  string
	Identity       string
	SharedKey      string
	CurveEncrypted bool
}

// RetryPolicy is the bounded exponential backoff spec.md §4.1 mandates:
// initial 0.5s, cap 30s, at most 5 attempts per frame.
type RetryPolicy struct {
	Initial    time.Duration
	Cap        time.Duration
	MaxRetries int
}

// DefaultRetryPolicy is the spec's literal default.
var DefaultRetryPolicy = RetryPolicy{
	Initial:    500 * time.Millisecond,
	Cap:        30 * time.Second,
	MaxRetries: 5,
}

// SendWithRetry wraps a one-shot send function in the driver's bounded
// exponential backoff, so any concrete Driver gets at-least-once delivery
// semantics on the return lane for free. Transient errors are retried;
// once attempts are exhausted, ErrUndeliverable is returned so the caller
// can report the frame NACKED.
func SendWithRetry(ctx context.Context, policy RetryPolicy, send func(context.Context) error) error {
	wait := policy.Initial
	var lastErr error
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		lastErr = send(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == policy.MaxRetries-1 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
		if wait > policy.Cap {
			wait = policy.Cap
		}
	}
	return errors.Join(ErrUndeliverable, lastErr)
}
