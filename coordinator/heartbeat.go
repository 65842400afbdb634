package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/directord/directord/driver"
)

// heartbeatPayload is the JSON body of a heartbeat frame, per spec.md
// §4.3's heartbeat emitter fields.
type heartbeatPayload struct {
	Version      string   `json:"version"`
	HostUptime   float64  `json:"host_uptime"`
	AgentUptime  float64  `json:"agent_uptime"`
	Capabilities []string `json:"capabilities"`
}

// heartbeatLoop is the dedicated worker spec.md §4.2 calls out: it reads
// heartbeat frames and upserts the worker table. Heartbeat delivery is
// best-effort; a Receive error here is logged and retried, not fatal.
func (c *Coordinator) heartbeatLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		identity, payload, err := c.Drv.HeartbeatRecv(ctx)
		if err != nil {
			if errors.Is(err, driver.ErrTimeout) {
				continue
			}
			if errors.Is(err, driver.ErrClosed) || ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("coordinator: heartbeat recv: %v", err)
			continue
		}
		var hb heartbeatPayload
		if err := json.Unmarshal(payload, &hb); err != nil {
			log.Printf("coordinator: malformed heartbeat from %s: %v", identity, err)
			continue
		}
		c.Workers.Upsert(
			identity,
			hb.Version,
			time.Duration(hb.HostUptime*float64(time.Second)),
			time.Duration(hb.AgentUptime*float64(time.Second)),
			hb.Capabilities,
		)
	}
}

// sweepLoop evicts worker records once per second whose expiry deadline
// has passed, per spec.md §4.2.
func (c *Coordinator) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, id := range c.Workers.Sweep() {
				log.Printf("coordinator: worker %s expired", id)
			}
		}
	}
}
