package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/civicgrid/complaintd/internal/board"
	"github.com/civicgrid/complaintd/internal/bus"
	"github.com/civicgrid/complaintd/internal/config"
	"github.com/civicgrid/complaintd/internal/connstate"
	"github.com/civicgrid/complaintd/internal/feed"
	"github.com/civicgrid/complaintd/internal/lock"
	"github.com/civicgrid/complaintd/internal/logging"
	"github.com/civicgrid/complaintd/internal/model"
	"github.com/civicgrid/complaintd/internal/profile"
	"github.com/civicgrid/complaintd/internal/restapi"
	"github.com/civicgrid/complaintd/internal/snapshot"
	"github.com/civicgrid/complaintd/internal/store"
	intsync "github.com/civicgrid/complaintd/internal/sync"
	"github.com/civicgrid/complaintd/internal/workflow"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// The board embeds the sync core in-process rather than talking to a
// running complaintd, so it takes the same profile lock: one syncing
// process per profile, whichever binary it is.
func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	roleFlag := flag.String("role", "", "acting role (overrides profile config)")
	flag.Parse()

	_ = godotenv.Load()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}
	prof, err := config.LoadProfile(profile.ProfileConfigPath(name))
	if err != nil {
		fatal(err)
	}
	if *roleFlag != "" {
		prof.Role = *roleFlag
	}
	role := model.Role(prof.Role)
	if !role.Valid() {
		fatal(fmt.Errorf("unknown role %q", prof.Role))
	}

	if err := profile.EnsureDir(name); err != nil {
		fatal(err)
	}
	lk, err := lock.Acquire(profile.Dir(name))
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			fatal(fmt.Errorf("profile %q is in use by PID %d; stop complaintd first", name, held.PID))
		}
		fatal(err)
	}
	defer func() { _ = lk.Release() }()

	logger, err := logging.New(profile.LogPath(name), name)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(profile.CachePath(name))
	if err != nil {
		fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fatal(err)
	}

	b := bus.New()
	machine := connstate.NewMachine(b)
	client := restapi.NewClient(prof.APIURL, prof.Token, nil)
	wf, err := workflow.NewEngine(workflow.Default())
	if err != nil {
		fatal(err)
	}

	capacity := prof.RetentionCap
	if capacity <= 0 {
		capacity = snapshot.DefaultCap
	}
	engine := intsync.NewEngine(snapshot.NewStore(capacity), client, client, wf, db, b, logger)

	feedURL, err := client.FeedURL(prof.FeedPath)
	if err != nil {
		fatal(err)
	}
	mgr := feed.NewManager(feed.Config{
		URL:              feedURL,
		Token:            client.Token(),
		HandshakeTimeout: prof.HandshakeTimeout(),
		BackoffBase:      prof.BackoffBase(),
		BackoffCap:       prof.BackoffCap(),
		JitterMax:        prof.JitterMax(),
	}, machine, engine.HandleFeedEvent, logger)
	engine.SetConnector(mgr)

	engine.WarmStart()
	go func() {
		if err := engine.Start(context.Background()); err != nil {
			logger.Warn("initial fetch failed, serving cache until feed recovers", zap.Error(err))
		}
	}()

	app := board.NewApp(engine, b, role, name)
	runErr := app.Run()

	engine.Stop()
	if runErr != nil {
		fatal(runErr)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
