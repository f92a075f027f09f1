package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"github.com/user/proximity-beacon/beacon"
	"github.com/user/proximity-beacon/config"
	"github.com/user/proximity-beacon/kotlin"
	"github.com/user/proximity-beacon/logger"
	"github.com/user/proximity-beacon/telemetry"
)

const prefix = "beacond"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// run owns every resource it opens, so each return path closes the telemetry recorder.
func run(args []string) error {
	flags := flag.NewFlagSet("beacond", flag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "Path to YAML config file")
	interval := flags.Duration("interval", 0, "Cycle interval (overrides config)")
	logLevel := flags.String("log-level", "", "Log level: TRACE, DEBUG, INFO, WARN, ERROR (overrides config)")
	runFor := flags.Duration("run-for", 0, "Stop after this long (0 runs until interrupted)")
	simulatePeers := flags.Int("simulate-peers", 0, "Number of simulated centrals that connect and write their configuration")
	radioOff := flags.Bool("radio-off", false, "Start with the Bluetooth adapter switched off")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *interval != 0 {
		cfg.Beacon.IntervalMs = int(*interval / time.Millisecond)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel())

	var sink telemetry.Sink = telemetry.Nop()
	if cfg.Telemetry.Path != "" {
		recorder, err := telemetry.OpenFile(cfg.Telemetry.Path, cfg.Telemetry.MaxSizeMB, cfg.Telemetry.MaxBackups, cfg.Telemetry.Buffer)
		if err != nil {
			return fmt.Errorf("failed to open telemetry file: %w", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Warn(prefix, "closing telemetry: %v", err)
			}
			logger.Info(prefix, "telemetry: %d records written, %d dropped", recorder.Written(), recorder.Dropped())
		}()
		sink = recorder
		logger.Info(prefix, "recording faults to %s", cfg.Telemetry.Path)
	}

	clock := kotlin.RealClock()
	manager := kotlin.NewBluetoothManager(cfg.Radio.Address, clock)
	if !cfg.Radio.Enabled || *radioOff {
		manager.Adapter.Disable()
	}

	gateway := beacon.NewGateway(beacon.NewHostRadio(manager), sink)
	gateway.SetAdvertiseTimeout(cfg.AdvertiseTimeout())
	identity := cfg.Identity()
	server := beacon.NewConnectionServer(gateway, identity.ServiceID(), sink)
	scheduler := beacon.NewScheduler(kotlin.NewAlarmManager(clock), kotlin.NewPowerManager(clock), gateway, server, identity, sink)
	scheduler.SetStartDelay(cfg.StartDelay())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}

	logger.Info(prefix, "🚀 starting beacon %s", identity)
	if err := scheduler.Enable(cfg.Interval()); err != nil {
		return fmt.Errorf("failed to enable beacon: %w", err)
	}

	if *simulatePeers > 0 {
		go runPeers(ctx, manager, server, *simulatePeers, cfg.Interval())
	}

	<-ctx.Done()
	logger.Info(prefix, "shutting down")
	scheduler.Disable(cfg.Interval())
	fmt.Println(logger.ToJSON(scheduler.Status().Proto()))
	return nil
}

// runPeers drives simulated centrals against the beacon's service, one peer per
// interval, until ctx is done.
func runPeers(ctx context.Context, manager *kotlin.BluetoothManager, server *beacon.ConnectionServer, count int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	peers := make([]*kotlin.BluetoothDevice, count)
	for i := range peers {
		id := uuid.New()
		peers[i] = &kotlin.BluetoothDevice{
			Address: fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", id[0], id[1], id[2], id[3], id[4], id[5]),
		}
	}

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		gattServer, err := manager.OpenGattServer(server)
		if err != nil {
			logger.Debug(prefix, "peer simulation paused: %v", err)
			continue
		}
		peer := peers[i%count]
		gattServer.ConnectDevice(peer)
		if gattServer.WriteDescriptor(peer, beacon.ConfigCharUUID, kotlin.CCCD_UUID, []byte{byte(i), 0x00}, true) < 0 {
			logger.Debug(prefix, "peer %s found no config descriptor", peer.Address)
		}
		gattServer.ReadDescriptor(peer, beacon.ConfigCharUUID, kotlin.CCCD_UUID, 0)
		gattServer.DisconnectDevice(peer)
	}
}
