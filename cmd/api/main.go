package main

import (
	"flag"
	"fmt"
	"os"

	"sevibus.transitlab.org/internal/appconf"
)

func main() {
	cfg, err := appconf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment for local runs.
	port := flag.Int("port", cfg.Port, "HTTP listen port")
	env := flag.String("env", cfg.Env.String(), "environment (development|test|production)")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	cfg.Port = *port
	cfg.Env = appconf.EnvFlagToEnvironment(*env)
	cfg.DBPath = *dbPath

	coreApp, err := BuildApplication(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(1)
	}
	defer teardown(coreApp)

	if err := Run(coreApp, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
