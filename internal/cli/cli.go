// Package cli implements the redisx-cli demo binary: a thin
// command-line front end over the top-level redisx package, useful for
// poking a single connection, a cluster, or a sentinel-discovered
// primary without writing Go.
package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"redisx"
)

// Execute dispatches CLI subcommands.
func Execute(args []string) int {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("[redisx-cli] ")

	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "do":
		return runDo(args[1:])
	case "cluster-do":
		return runClusterDo(args[1:])
	case "sentinel-do":
		return runSentinelDo(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "version", "--version", "-v":
		fmt.Println("redisx-cli 0.1.0-dev")
		return 0
	default:
		log.Printf("Unknown subcommand: %s", args[0])
		printUsage()
		return 1
	}
}

// runDo dials a single connection from a YAML config (or --addr) and
// sends one command, printing its decoded reply.
func runDo(args []string) int {
	fs := flag.NewFlagSet("do", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	var configPath, addr, password string
	var db int
	fs.StringVar(&configPath, "config", "", "Connection config file (YAML)")
	fs.StringVar(&addr, "addr", "", "host:port (used when --config is not given)")
	fs.StringVar(&password, "password", "", "AUTH password")
	fs.IntVar(&db, "db", 0, "logical database index")

	if err := fs.Parse(args); err != nil {
		return errorToExitCode(err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		log.Println("a command name is required, e.g. redisx-cli do ping")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialClient(ctx, configPath, addr, password, db)
	if err != nil {
		log.Printf("Failed to connect: %v", err)
		return 1
	}
	defer client.Disconnect(false)

	reply, err := client.Do(ctx, rest[0], toArgs(rest[1:])...)
	if err != nil {
		log.Printf("Command failed: %v", err)
		return 1
	}
	fmt.Printf("%v\n", reply)
	return 0
}

func dialClient(ctx context.Context, configPath, addr, password string, db int) (*redisx.Client, error) {
	if configPath != "" {
		return redisx.DialFromFile(ctx, configPath)
	}
	if addr == "" {
		return nil, fmt.Errorf("either --config or --addr is required")
	}
	return redisx.Dial(ctx, redisx.Options{
		Addr:               addr,
		Password:           password,
		DB:                 db,
		ConnectTimeout:     5 * time.Second,
		EnableOfflineQueue: true,
		EnableReadyCheck:   true,
	})
}

// runClusterDo bootstraps a ClusterClient from a YAML config and sends
// one command, following whatever redirections are needed.
func runClusterDo(args []string) int {
	fs := flag.NewFlagSet("cluster-do", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	var configPath string
	var seeds string
	fs.StringVar(&configPath, "config", "", "Cluster config file (YAML)")
	fs.StringVar(&seeds, "seeds", "", "comma-separated seed nodes (used when --config is not given)")

	if err := fs.Parse(args); err != nil {
		return errorToExitCode(err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		log.Println("a command name is required, e.g. redisx-cli cluster-do get foo")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var cc *redisx.ClusterClient
	var err error
	switch {
	case configPath != "":
		cc, err = redisx.NewClusterFromFile(ctx, configPath)
	case seeds != "":
		cc, err = redisx.NewCluster(ctx, redisx.ClusterOptions{
			SeedAddrs:       strings.Split(seeds, ","),
			MaxRedirections: 16,
		})
	default:
		log.Println("either --config or --seeds is required")
		return 2
	}
	if err != nil {
		log.Printf("Failed to bootstrap cluster: %v", err)
		return 1
	}
	defer cc.Close()

	reply, err := cc.Do(ctx, rest[0], toArgs(rest[1:])...)
	if err != nil {
		log.Printf("Command failed: %v", err)
		return 1
	}
	fmt.Printf("%v\n", reply)
	return 0
}

// runSentinelDo resolves the current primary through a sentinel fleet
// and sends one command to it.
func runSentinelDo(args []string) int {
	fs := flag.NewFlagSet("sentinel-do", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	var sentinels, master string
	fs.StringVar(&sentinels, "sentinels", "", "comma-separated sentinel addresses")
	fs.StringVar(&master, "master", "", "sentinel master/service name")

	if err := fs.Parse(args); err != nil {
		return errorToExitCode(err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		log.Println("a command name is required, e.g. redisx-cli sentinel-do ping")
		return 2
	}
	if sentinels == "" || master == "" {
		log.Println("--sentinels and --master are both required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redisx.DialViaSentinel(ctx, redisx.SentinelOptions{
		SentinelAddrs: strings.Split(sentinels, ","),
		MasterName:    master,
		ConnOptions: redisx.Options{
			ConnectTimeout:     5 * time.Second,
			EnableOfflineQueue: true,
		},
	})
	if err != nil {
		log.Printf("Failed to resolve primary: %v", err)
		return 1
	}
	defer client.Disconnect(false)

	reply, err := client.Do(ctx, rest[0], toArgs(rest[1:])...)
	if err != nil {
		log.Printf("Command failed: %v", err)
		return 1
	}
	fmt.Printf("%v\n", reply)
	return 0
}

func toArgs(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func errorToExitCode(err error) int {
	if err == flag.ErrHelp {
		return 0
	}
	log.Printf("Failed to parse arguments: %v", err)
	return 1
}

func printUsage() {
	fmt.Print(`redisx-cli - ad hoc command runner for the redisx client core

Usage:
  redisx-cli <command> [options] -- <redis-command> [args...]

Available commands:
  do            Send one command over a single connection
  cluster-do    Send one command through a cluster router
  sentinel-do   Resolve a primary via sentinel, then send one command
  help          Show this help
  version       Show version info

Examples:
  redisx-cli do --addr 127.0.0.1:6379 -- ping
  redisx-cli do --config conn.yaml -- get foo
  redisx-cli cluster-do --seeds 10.0.0.1:6379,10.0.0.2:6379 -- get foo
  redisx-cli sentinel-do --sentinels 10.0.0.1:26379 --master mymaster -- ping
`)
}
