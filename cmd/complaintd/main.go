package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/civicgrid/complaintd/internal/config"
	"github.com/civicgrid/complaintd/internal/daemon"
	"github.com/civicgrid/complaintd/internal/profile"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	// A .env in the working directory can supply COMPLAINTD_* overrides.
	_ = godotenv.Load()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	prof, err := config.LoadProfile(profile.ProfileConfigPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: name, Profile: prof}),
	)

	app.Run()
}
