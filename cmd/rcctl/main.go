package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"rclink/pkg/bridge/telemetry"
	"rclink/pkg/config"
	"rclink/pkg/transport"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "drive":
		return runDrive(args[1:], stdout, stderr)
	case "hub":
		return runHub(args[1:], stdout, stderr)
	case "sim":
		return runSim(args[1:], stdout, stderr)
	case "ports":
		return runPorts(stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "init":
		return runInit(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func newLogger(w io.Writer) *log.Logger {
	return log.New(w, "rcctl ", log.LstdFlags|log.Lmicroseconds)
}

// loadConfig reads path, tolerating a missing file only when the path was not given explicitly.
func loadConfig(path string, explicit bool) (config.Config, error) {
	cfg, exists, err := config.LoadOrDefault(path)
	if err != nil {
		return config.Config{}, err
	}
	if explicit && !exists {
		return config.Config{}, fmt.Errorf("config %s: %w", path, os.ErrNotExist)
	}
	return cfg, nil
}

// setFlags returns the names of flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func runPorts(stdout io.Writer, stderr io.Writer) int {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(ports) == 0 {
		fmt.Fprintln(stderr, "no serial ports found")
		return 0
	}
	for _, p := range ports {
		fmt.Fprintln(stdout, p)
	}
	return 0
}

func runToken(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultConfigPath, "config file (.toml, .yaml)")
	secret := fs.String("secret", "", "telemetry secret (default: telemetry.secret from config)")
	subject := fs.String("subject", "dashboard", "token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime, 0 for none")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	key := *secret
	if key == "" {
		cfg, err := loadConfig(*configPath, setFlags(fs)["config"])
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		key = cfg.Telemetry.Secret
	}
	token, err := telemetry.IssueToken(key, *subject, *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runInit(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", config.DefaultConfigPath, "config file to create (.toml, .yaml)")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Fprintf(stderr, "%s already exists (use --force to overwrite)\n", *path)
		return 1
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(stderr, err)
		return 1
	}
	cfg := config.Default()
	if err := cfg.Save(*path); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, "wrote", *path)
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  rcctl drive [--config rclink.toml] [--addr host:port | --serial port] [--input joystick|keyboard|mock] [--layout name]")
	fmt.Fprintln(w, "  rcctl hub   [--config rclink.toml] [--listen host:port | --serial port] [--motor log|serial] [--motor-port port]")
	fmt.Fprintln(w, "  rcctl sim   [--duration 5s] [--timeout 2s]")
	fmt.Fprintln(w, "  rcctl ports")
	fmt.Fprintln(w, "  rcctl token [--secret s] [--subject dashboard] [--ttl 24h]")
	fmt.Fprintln(w, "  rcctl init  [--config rclink.toml] [--force]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  drive   run the controller side and send commands to the hub")
	fmt.Fprintln(w, "  hub     run the vehicle side and drive the motors")
	fmt.Fprintln(w, "  sim     run both sides in-process with synthetic input and dry-run motors")
	fmt.Fprintln(w, "  ports   list serial ports")
	fmt.Fprintln(w, "  token   issue a telemetry bearer token")
	fmt.Fprintln(w, "  init    write a default config file")
}
