package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/TheFlexican/smart-heating-sub000/pkg/connection"
	"github.com/TheFlexican/smart-heating-sub000/pkg/connlog"
	"github.com/TheFlexican/smart-heating-sub000/pkg/metrics"
	"github.com/TheFlexican/smart-heating-sub000/pkg/supervisor"
	"github.com/TheFlexican/smart-heating-sub000/pkg/transport"
	"github.com/TheFlexican/smart-heating-sub000/pkg/wire"
	"github.com/TheFlexican/smart-heating-sub000/pkg/zone"
)

// console is the interactive zonewatch shell. It mirrors the zone
// collection from the transport callbacks and inspects the supervisor
// on demand.
type console struct {
	journalPath string

	mu        sync.Mutex
	zones     map[string]zone.Zone
	connected bool

	sup   *supervisor.Supervisor
	store *metrics.Store
}

func newConsole(journalPath string) *console {
	return &console{
		journalPath: journalPath,
		zones:       make(map[string]zone.Zone),
	}
}

func (c *console) attach(sup *supervisor.Supervisor, store *metrics.Store) {
	c.sup = sup
	c.store = store
}

// callbacks builds the consumer-facing callbacks: mirror zone state,
// log connection transitions.
func (c *console) callbacks(log zerolog.Logger) transport.Callbacks {
	return transport.Callbacks{
		OnZonesUpdate: func(zones []zone.Zone) {
			c.mu.Lock()
			c.zones = make(map[string]zone.Zone, len(zones))
			for _, z := range zones {
				c.zones[z.ID] = z
			}
			count := len(c.zones)
			c.mu.Unlock()
			log.Info().Int("zones", count).Msg("zone collection updated")
		},
		OnZoneUpdate: func(z zone.Zone) {
			c.mu.Lock()
			c.zones[z.ID] = z
			c.mu.Unlock()
			log.Info().Str("zone", z.ID).Msg("zone updated")
		},
		OnZoneDelete: func(id string) {
			c.mu.Lock()
			delete(c.zones, id)
			c.mu.Unlock()
			log.Info().Str("zone", id).Msg("zone deleted")
		},
		OnConnect: func() {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			log.Info().Msg("connected")
		},
		OnDisconnect: func(unexpected bool) {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			log.Warn().Bool("unexpected", unexpected).Msg("disconnected")
		},
		OnError: func(err error) {
			log.Warn().Err(err).Msg("transport error")
		},
	}
}

// run starts the interactive command loop. It returns when the user
// quits or the context ends.
func (c *console) run(ctx context.Context, cancel context.CancelFunc) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zonewatch> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c.printHelp(rl)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			cancel()
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp(rl)

		case "status", "s":
			c.cmdStatus(rl)

		case "zones", "z":
			c.cmdZones(rl)

		case "metrics", "m":
			c.cmdMetrics(rl)

		case "journal", "j":
			c.cmdJournal(rl)

		case "wake":
			c.cmdWake(rl, args)

		case "send":
			c.cmdSend(rl, args)

		case "quit", "exit", "q":
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			cancel()
			return nil

		default:
			fmt.Fprintf(rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *console) printHelp(rl *readline.Instance) {
	fmt.Fprintln(rl.Stdout(), `
Zonewatch Commands:
  status             - Show connection state and transport mode
  zones              - List known zones
  metrics            - Show connection health metrics
  journal            - Show recent connection lifecycle events
  wake [reason]      - Signal a lifecycle wake (visible, focus, online, pageshow, resume)
  send <type>        - Send a raw command on the active transport
  help               - Show this help
  quit               - Exit`)
}

func (c *console) cmdStatus(rl *readline.Instance) {
	c.mu.Lock()
	connected := c.connected
	zoneCount := len(c.zones)
	c.mu.Unlock()

	fmt.Fprintf(rl.Stdout(), "Connected: %v\n", connected)
	fmt.Fprintf(rl.Stdout(), "Mode:      %s\n", c.sup.Mode())
	fmt.Fprintf(rl.Stdout(), "Failures:  %d\n", c.sup.Failures())
	fmt.Fprintf(rl.Stdout(), "Zones:     %d\n", zoneCount)
}

func (c *console) cmdZones(rl *readline.Instance) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.zones))
	for id := range c.zones {
		ids = append(ids, id)
	}
	zones := make(map[string]zone.Zone, len(c.zones))
	for id, z := range c.zones {
		zones[id] = z
	}
	c.mu.Unlock()

	if len(ids) == 0 {
		fmt.Fprintln(rl.Stdout(), "No zones known yet.")
		return
	}

	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(rl.Stdout(), "  %-20s %s\n", id, zoneSummary(zones[id]))
	}
}

// zoneSummary probes a few well-known fields for display; the payload
// itself stays opaque.
func zoneSummary(z zone.Zone) string {
	var probe struct {
		Name        string   `json:"name"`
		Temperature *float64 `json:"temperature"`
		Target      *float64 `json:"target_temperature"`
	}
	if err := json.Unmarshal(z.Raw, &probe); err != nil {
		return ""
	}

	var parts []string
	if probe.Name != "" {
		parts = append(parts, probe.Name)
	}
	if probe.Temperature != nil {
		parts = append(parts, fmt.Sprintf("%.1f°C", *probe.Temperature))
	}
	if probe.Target != nil {
		parts = append(parts, fmt.Sprintf("→ %.1f°C", *probe.Target))
	}
	return strings.Join(parts, "  ")
}

func (c *console) cmdMetrics(rl *readline.Instance) {
	snap := c.store.Snapshot()

	fmt.Fprintf(rl.Stdout(), "Attempts:               %d\n", snap.TotalAttempts)
	fmt.Fprintf(rl.Stdout(), "Successful connections: %d\n", snap.SuccessfulConnections)
	fmt.Fprintf(rl.Stdout(), "Failed connections:     %d\n", snap.FailedConnections)
	fmt.Fprintf(rl.Stdout(), "Unexpected disconnects: %d\n", snap.UnexpectedDisconnects)
	if snap.AverageConnectionMS > 0 {
		fmt.Fprintf(rl.Stdout(), "Average connection:     %s\n",
			time.Duration(snap.AverageConnectionMS)*time.Millisecond)
	}
	if snap.LastFailureReason != "" {
		fmt.Fprintf(rl.Stdout(), "Last failure:           %s\n", snap.LastFailureReason)
	}
	if !snap.LastConnectedAt.IsZero() {
		fmt.Fprintf(rl.Stdout(), "Last connected:         %s\n", snap.LastConnectedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(rl.Stdout(), "Device:                 %s/%s (mobile=%v embedded=%v)\n",
		snap.Device.Platform, snap.Device.Browser, snap.Device.Mobile, snap.Device.Embedded)
}

func (c *console) cmdJournal(rl *readline.Instance) {
	events, err := connlog.ReadFile(c.journalPath)
	if err != nil {
		fmt.Fprintf(rl.Stdout(), "Could not read journal: %v\n", err)
		return
	}
	if len(events) == 0 {
		fmt.Fprintln(rl.Stdout(), "Journal is empty.")
		return
	}

	// The last 15 entries are usually what matters.
	if len(events) > 15 {
		events = events[len(events)-15:]
	}
	for _, ev := range events {
		line := fmt.Sprintf("  %s  %-12s %s", ev.Time.Format(time.TimeOnly), ev.Kind, ev.Transport)
		if ev.Reason != "" {
			line += "  (" + ev.Reason + ")"
		}
		fmt.Fprintln(rl.Stdout(), line)
	}
}

func (c *console) cmdWake(rl *readline.Instance, args []string) {
	reason := connection.WakeResume
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "visible":
			reason = connection.WakeVisible
		case "focus":
			reason = connection.WakeFocus
		case "online":
			reason = connection.WakeOnline
		case "pageshow":
			reason = connection.WakePageShow
		case "resume":
			reason = connection.WakeResume
		default:
			fmt.Fprintf(rl.Stdout(), "Unknown wake reason: %s\n", args[0])
			return
		}
	}

	c.sup.Wake(reason)
	fmt.Fprintf(rl.Stdout(), "Wake signal sent (%s)\n", reason)
}

func (c *console) cmdSend(rl *readline.Instance, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(rl.Stdout(), "Usage: send <type>")
		return
	}

	cmd := &wire.Command{Type: args[0]}
	if c.sup.Send(cmd) {
		fmt.Fprintf(rl.Stdout(), "Sent %s (id %d)\n", cmd.Type, cmd.ID)
	} else {
		fmt.Fprintln(rl.Stdout(), "Send failed: no command path on the active transport")
	}
}
