package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

var (
	version    = flag.Bool("version", false, "Print version info")
	help       = flag.Bool("help", false, "Print help")
	configPath = flag.String("config", "/etc/pcm-emulator/config.yml", "Config file path")
	logLevel   = flag.Int("log", -1, "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	canDevice  = flag.String("can_device", "", "CAN device name (overrides config)")
	vehicle    = flag.String("vehicle", "", "Vehicle type: combustion or electric (overrides config)")
	redisAddr  = flag.String("redis_addr", "", "Redis address (overrides config)")
)

const (
	ProjectName    = "pcm-emulator"
	ProjectVersion = "1.0.0"
)

func printVersion() {
	fmt.Printf("%s v%s\n", ProjectName, ProjectVersion)
}

func printHelp() {
	printVersion()
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Flags beat the file and the environment.
	if *logLevel >= 0 {
		cfg.LogLevel = *logLevel
	}
	if *canDevice != "" {
		cfg.CANDevice = *canDevice
	}
	if *vehicle != "" {
		cfg.VehicleType = *vehicle
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if err := cfg.validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("failed to create app: %v", err)
	}
	defer app.Destroy()

	// Handle SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Run until signal received
	<-sigChan
}
