// Package cli implements the interactive console for the bot. It exposes
// the same operations an in-game admin would have: inspect vote state,
// force a vote, set the next map, and send raw RCON commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/bsubei/rconbot/internal/config"
	"github.com/bsubei/rconbot/internal/events"
	"github.com/bsubei/rconbot/internal/mappool"
	"github.com/bsubei/rconbot/internal/voter"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	bus      *events.Bus
	coord    *voter.Coordinator
	exec     voter.Executor
	rotation *mappool.RotationProvider
}

// NewCLI creates a new CLI handler. rotation may be nil when running from
// a layer pool instead of a rotation file.
func NewCLI(cfg *config.Config, bus *events.Bus, coord *voter.Coordinator, exec voter.Executor, rotation *mappool.RotationProvider) *CLI {
	return &CLI{
		cfg:      cfg,
		bus:      bus,
		coord:    coord,
		exec:     exec,
		rotation: rotation,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nrconbot console ready. Type 'help' for available commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("rconbot> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "votestart":
		c.coord.ForceStart()
		fmt.Println("Map vote started")
	case "setmap":
		return c.cmdSetMap(args)
	case "maps":
		c.printMaps()
	case "exec":
		return c.cmdExec(ctx, args)
	case "broadcast", "msg":
		return c.cmdBroadcast(ctx, args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down rconbot...")
		c.bus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Println()
	fmt.Println("  status           Show the current vote state")
	fmt.Println("  votestart        Start a map vote immediately, bypassing quorum")
	fmt.Println("  setmap <name>    Set the next map directly")
	fmt.Println("  maps             List the known map rotation")
	fmt.Println("  exec <command>   Send a raw RCON command and print the response")
	fmt.Println("  broadcast <msg>  Send an in-game admin broadcast")
	fmt.Println("  quit             Shutdown rconbot")
	fmt.Println("  help             Show this help message")
	fmt.Println()
}

// printStatus displays the vote snapshot in a formatted table.
func (c *CLI) printStatus() {
	snap := c.coord.Snapshot()

	fmt.Println()
	fmt.Printf("  State:      %s\n", snap.Status)
	fmt.Printf("  Requesters: %d / %d\n", snap.Requesters, c.cfg.QuorumThreshold)
	if snap.SessionID != "" {
		fmt.Printf("  Session:    %s\n", snap.SessionID)
		if !snap.Deadline.IsZero() {
			fmt.Printf("  Closes in:  %s\n", time.Until(snap.Deadline).Round(time.Second))
		}
	}
	if !snap.LastResolvedAt.IsZero() {
		fmt.Printf("  Last vote:  %s\n", snap.LastResolvedAt.Format(time.RFC3339))
	}

	if len(snap.Candidates) == 0 {
		fmt.Println()
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"#", "Candidate", "Votes"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	counts := make([]int, len(snap.Candidates))
	for _, choice := range snap.Ballots {
		if choice >= 0 && choice < len(counts) {
			counts[choice]++
		}
	}
	for i, name := range snap.Candidates {
		tw.Append([]string{
			fmt.Sprintf("%d", i+1),
			name,
			fmt.Sprintf("%d", counts[i]),
		})
	}
	tw.Render()
	fmt.Println()
}

func (c *CLI) printMaps() {
	if c.rotation == nil {
		fmt.Println("No map rotation loaded (running from a layer pool)")
		return
	}
	maps := c.rotation.Maps()
	sorted := make([]string, len(maps))
	copy(sorted, maps)
	sort.Strings(sorted)
	fmt.Printf("\n%d maps in rotation:\n", len(sorted))
	for _, name := range sorted {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println()
}

func (c *CLI) cmdSetMap(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: setmap <name>")
	}
	name := strings.Join(args, " ")
	c.coord.SetNextMap(name)
	fmt.Printf("Next map set to %s\n", name)
	return nil
}

func (c *CLI) cmdExec(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: exec <command>")
	}
	command := strings.Join(args, " ")

	execCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	response, err := c.exec.Execute(execCtx, command)
	if err != nil {
		return err
	}
	if response == "" {
		fmt.Println("(empty response)")
	} else {
		fmt.Println(response)
	}
	return nil
}

func (c *CLI) cmdBroadcast(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: broadcast <message>")
	}
	message := strings.Join(args, " ")

	execCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := c.exec.Execute(execCtx, fmt.Sprintf("AdminBroadcast \"%s\"", message)); err != nil {
		return err
	}
	log.Info().Str("message", message).Msg("admin broadcast sent from console")
	return nil
}
