// Command weapon is a demo CLI exercising the engine end-to-end:
// create/append to a journal stream, sync it against the local persistent
// store and (optionally) the remote authoritative store, and show
// SyncState.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/weapon/pkg/econfig"
	"github.com/rubiojr/weapon/pkg/elog"
	"github.com/rubiojr/weapon/pkg/engine"
	"github.com/rubiojr/weapon/pkg/synctargets/localstore"
	"github.com/rubiojr/weapon/pkg/synctargets/remote"
	"github.com/rubiojr/weapon/pkg/version"
)

const journalStream = "journal"

func main() {
	app := &cli.Command{
		Name:    "weapon",
		Usage:   "Demo CLI for the local-first multi-device event-sourcing engine",
		Version: version.BuildVersion(),
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
			&cli.StringFlag{Name: "config", Usage: "Configuration file path", Value: econfig.DefaultConfigPath()},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if c.Bool("debug") {
				elog.SetGlobalDebug(true)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			initCommand(),
			addCommand(),
			showCommand(),
			syncCommand(),
			statusCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a commented sample configuration file",
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.String("config")
			cfg := econfig.DefaultConfig()
			if err := cfg.SaveTemplate(path); err != nil {
				return fmt.Errorf("writing config template: %w", err)
			}
			fmt.Printf("Wrote configuration template to %s\n", path)
			return nil
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Append a line to the journal stream",
		ArgsUsage: "<text>",
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" {
				return fmt.Errorf("usage: weapon add <text>")
			}

			return withLocalOnly(ctx, c, func(ctx context.Context, es *engine.EventStore[string, string], store *localstore.Store, deviceID string) error {
				engine.AddRawEvent[string, string, JournalEntry](es, journalStream, deviceID, JournalEntry{Text: text}, 0, false, decodeJournalEntry)
				if err := syncTarget(ctx, es, store, nil); err != nil {
					return fmt.Errorf("pushing new entry to local store: %w", err)
				}
				fmt.Println("Added.")
				return nil
			})
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Print the journal stream's folded state",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withLocalOnly(ctx, c, func(ctx context.Context, es *engine.EventStore[string, string], store *localstore.Store, deviceID string) error {
				typed, ok := engine.Get[string, string, JournalEntry](es, journalStream)
				fmt.Println(titleStyle.Render("Journal"))
				if !ok {
					fmt.Println(metaStyle.Render("(empty — nothing synced yet)"))
					return nil
				}
				state := engine.State(typed, journalState{}, applyJournalEvent)
				for _, line := range state.Lines {
					fmt.Println(lineStyle.Render(line))
				}
				return nil
			})
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync the journal stream against every configured target",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, store, es, deviceID, err := openLocal(c.String("config"))
			_ = deviceID
			if err != nil {
				return err
			}
			defer store.Close()

			targets := buildTargets(cfg, store)
			for _, target := range targets {
				if err := engine.Sync[string, string](ctx, es, target, nil, nil); err != nil {
					fmt.Printf("sync against %s failed: %v\n", target.Name(), err)
				} else {
					fmt.Printf("synced against %s\n", target.Name())
				}
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show last sync outcome for every configured target",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, store, es, _, err := openLocal(c.String("config"))
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Println(titleStyle.Render("Sync status"))
			for _, target := range buildTargets(cfg, store) {
				state := es.SyncState(target.Name())
				renderSyncState(target.Name(), state)
			}
			return nil
		},
	}
}

func renderSyncState(name string, state *engine.SyncState[string, string]) {
	status := okStyle.Render("ok")
	if state.LastSyncError != nil {
		status = errStyle.Render("error: " + *state.LastSyncError)
	}
	finished := "never"
	if state.LastSyncFinished != nil {
		finished = state.LastSyncFinished.Format(time.RFC3339)
	}
	fmt.Printf("%s  %s  last finished: %s  in progress: %v\n", metaStyle.Render(name), status, finished, state.InProgress())
}

// withLocalOnly is the common path for commands that only need the local
// persistent store: open config, open the store, build an EventStore, pull
// its current state, run the body, and always release the store handle.
func withLocalOnly(ctx context.Context, c *cli.Command, body func(ctx context.Context, es *engine.EventStore[string, string], store *localstore.Store, deviceID string) error) error {
	_, store, es, deviceID, err := openLocal(c.String("config"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := syncTarget(ctx, es, store, nil); err != nil {
		return fmt.Errorf("loading state from local store: %w", err)
	}
	return body(ctx, es, store, deviceID)
}

func openLocal(configPath string) (*econfig.Config, *localstore.Store, *engine.EventStore[string, string], string, error) {
	cfg, err := econfig.Load(configPath)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("loading config: %w", err)
	}
	if cfg.UserID == "" {
		return nil, nil, nil, "", fmt.Errorf("config has no user_id set; run 'weapon init' and edit %s", configPath)
	}

	deviceID, err := ensureDeviceID(cfg, configPath)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("assigning device id: %w", err)
	}

	dbPath := cfg.StorageDir + "/" + cfg.UserID + ".db"
	store, err := localstore.Open(dbPath, cfg.UserID)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("opening local store: %w", err)
	}

	// The journal stream must exist before a sync can pull its events: the
	// type-erased ingest path rejects streams the store has not created.
	es := engine.NewEventStore[string, string]()
	engine.GetOrInsertDefault[string, string, JournalEntry](es, journalStream, decodeJournalEntry)
	return cfg, store, es, deviceID, nil
}

func syncTarget(ctx context.Context, es *engine.EventStore[string, string], target engine.SyncTarget[string, string], streamFilter *string) error {
	return engine.Sync[string, string](ctx, es, target, streamFilter, nil)
}

func buildTargets(cfg *econfig.Config, store *localstore.Store) []engine.SyncTarget[string, string] {
	targets := []engine.SyncTarget[string, string]{store}
	if cfg.Remote.BaseURL != "" {
		targets = append(targets, remote.New(remote.Config{
			BaseURL:      cfg.Remote.BaseURL,
			AnonymousKey: cfg.Remote.AnonymousKey,
			UserID:       cfg.UserID,
		}))
	}
	return targets
}
