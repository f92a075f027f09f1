package beacon

import (
	"sync"
	"time"

	"github.com/user/proximity-beacon/kotlin"
	"github.com/user/proximity-beacon/logger"
	"github.com/user/proximity-beacon/telemetry"
	"google.golang.org/protobuf/types/known/structpb"
)

// AlarmService schedules exact wake-ups that fire even while the process is idle.
// Alarms with the same PendingIntent identity replace each other.
type AlarmService interface {
	Now() time.Time
	SetExactAndAllowWhileIdle(triggerAt time.Time, operation *kotlin.PendingIntent)
	Cancel(operation *kotlin.PendingIntent)
}

// PowerService hands out wake locks that keep the host awake for one cycle.
type PowerService interface {
	NewWakeLock(levelAndFlags int, tag string) *kotlin.WakeLock
}

// Scheduler runs the advertise cycle chain: each wake-up re-arms the next one, makes
// sure the connection server is set up and restarts advertising.
//
// cycleMu is the exclusive execution lock. At most one OnCycleFire or Disable body
// runs at a time; a second fire waits for the first and then runs with its own
// interval. Peer events from the radio are not serialized by it.
type Scheduler struct {
	alarms   AlarmService
	power    PowerService
	gateway  *Gateway
	server   *ConnectionServer
	identity Identity
	sink     telemetry.Sink

	startDelay time.Duration
	prefix     string

	cycleMu sync.Mutex

	stateMu   sync.Mutex
	enabled   bool
	armedAt   time.Time
	interval  time.Duration
	cycles    uint64
	lastCycle time.Time
}

func NewScheduler(alarms AlarmService, power PowerService, gateway *Gateway, server *ConnectionServer, identity Identity, sink telemetry.Sink) *Scheduler {
	if sink == nil {
		sink = telemetry.Nop()
	}
	return &Scheduler{
		alarms:     alarms,
		power:      power,
		gateway:    gateway,
		server:     server,
		identity:   identity,
		sink:       sink,
		startDelay: DefaultStartDelay,
		prefix:     gateway.prefix,
	}
}

// SetStartDelay changes the delay between Enable and the first cycle.
func (s *Scheduler) SetStartDelay(d time.Duration) {
	s.startDelay = d
}

// pendingIntent builds the wake-up operation. Its identity is the component plus
// RequestCode, so arming with any interval replaces the pending wake-up.
func (s *Scheduler) pendingIntent(cfg CycleConfig) *kotlin.PendingIntent {
	intent := kotlin.NewIntent(ReceiverComponent).PutExtra(IntervalExtra, cfg.millis())
	return kotlin.GetBroadcast(s, RequestCode, intent)
}

// Enable arms the first cycle after the start delay. Enabling again re-arms with the
// new interval.
func (s *Scheduler) Enable(interval time.Duration) error {
	cfg := CycleConfig{Interval: interval}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.armAt(s.alarms.Now().Add(s.startDelay), cfg)
	s.stateMu.Lock()
	s.enabled = true
	s.stateMu.Unlock()

	logger.Info(s.prefix, "beacon enabled (interval=%v, first cycle in %v)", interval, s.startDelay)
	return nil
}

// Disable cancels the pending wake-up and, if the radio is ready, stops advertising
// and closes the connection server. The wake-up is cancelled whatever the radio
// state. An in-flight cycle is not interrupted; Disable waits for it and then cancels
// the wake-up that cycle armed.
func (s *Scheduler) Disable(interval time.Duration) {
	op := s.pendingIntent(CycleConfig{Interval: interval})
	s.alarms.Cancel(op)
	s.stateMu.Lock()
	s.enabled = false
	s.armedAt = time.Time{}
	s.stateMu.Unlock()

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	defer s.recoverFault("Disable")

	s.alarms.Cancel(op)
	s.stateMu.Lock()
	s.armedAt = time.Time{}
	s.stateMu.Unlock()

	if !s.gateway.IsRadioReady() {
		logger.Warn(s.prefix, "beacon disabled with radio unavailable, nothing to stop")
		return
	}
	_ = s.gateway.StopAdvertising(s.server)
	_ = s.server.Close()
	logger.Info(s.prefix, "beacon disabled")
}

// OnReceive is the wake-up entry point. It holds a wake lock for the cycle and runs
// it with the interval carried by intent, falling back to the last armed interval.
// A wake-up that reaches the cycle lock after Disable is dropped without re-arming.
func (s *Scheduler) OnReceive(intent *kotlin.Intent) {
	defer s.recoverFault("OnReceive")

	cfg := cycleConfigFromMillis(intent.GetIntExtra(IntervalExtra, 0))
	if err := cfg.Validate(); err != nil {
		cfg = s.fallbackConfig()
		logger.Warn(s.prefix, "wake-up without a valid interval, using %v", cfg.Interval)
	}

	wakeLock := s.power.NewWakeLock(kotlin.PARTIAL_WAKE_LOCK, WakeLockTag)
	wakeLock.Acquire(cfg.Interval)
	defer wakeLock.Release()

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.stateMu.Lock()
	enabled := s.enabled
	s.stateMu.Unlock()
	if !enabled {
		logger.Info(s.prefix, "wake-up after disable, not re-arming")
		return
	}
	s.cycle(cfg)
}

// OnCycleFire runs one cycle under the exclusive lock. The next wake-up is armed
// before any radio call so a failing cycle still leaves the chain scheduled.
func (s *Scheduler) OnCycleFire(interval time.Duration) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cfg := CycleConfig{Interval: interval}
	if err := cfg.Validate(); err != nil {
		logger.Warn(s.prefix, "cycle skipped: %v", err)
		return
	}
	s.cycle(cfg)
}

// cycle is the body of one cycle. Callers hold cycleMu.
func (s *Scheduler) cycle(cfg CycleConfig) {
	defer s.recoverFault("OnCycleFire")

	now := s.alarms.Now()
	s.armAt(now.Add(cfg.Interval), cfg)

	// Setup and advertising failures are logged and reported by the gateway; the
	// next cycle is the retry.
	_ = s.server.Setup()
	_ = s.gateway.StartAdvertising(s.identity, s.server)

	s.stateMu.Lock()
	s.cycles++
	s.lastCycle = now
	s.stateMu.Unlock()

	if logger.GetLevel() <= logger.DEBUG {
		logger.DebugJSON(s.prefix, "cycle complete", s.Status().Proto())
	}
}

func (s *Scheduler) fallbackConfig() CycleConfig {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.interval > 0 {
		return CycleConfig{Interval: s.interval}
	}
	return CycleConfig{Interval: DefaultInterval}
}

func (s *Scheduler) armAt(triggerAt time.Time, cfg CycleConfig) {
	s.alarms.SetExactAndAllowWhileIdle(triggerAt, s.pendingIntent(cfg))
	s.stateMu.Lock()
	s.armedAt = triggerAt
	s.interval = cfg.Interval
	s.stateMu.Unlock()
	logger.Trace(s.prefix, "next cycle armed at %s", triggerAt.Format(time.RFC3339Nano))
}

func (s *Scheduler) recoverFault(op string) {
	if r := recover(); r != nil {
		fault := panicFault(op, r)
		logger.Error(s.prefix, "❌ %s failed (%s): %v", op, fault.Source, fault.Err)
		s.sink.Log(tagScheduler, fault.Error())
	}
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Enabled    bool
	RadioReady bool
	Interval   time.Duration
	NextCycle  time.Time // zero when nothing is armed
	Cycles     uint64
	LastCycle  time.Time
	KnownPeers int
}

func (s *Scheduler) Status() Status {
	s.stateMu.Lock()
	st := Status{
		Enabled:   s.enabled,
		Interval:  s.interval,
		NextCycle: s.armedAt,
		Cycles:    s.cycles,
		LastCycle: s.lastCycle,
	}
	s.stateMu.Unlock()

	st.RadioReady = s.gateway.IsRadioReady()
	st.KnownPeers = s.server.KnownPeers()
	return st
}

// Proto renders the snapshot for JSON dumps.
func (st Status) Proto() *structpb.Struct {
	fields := map[string]*structpb.Value{
		"enabled":    structpb.NewBoolValue(st.Enabled),
		"radioReady": structpb.NewBoolValue(st.RadioReady),
		"intervalMs": structpb.NewNumberValue(float64(st.Interval.Milliseconds())),
		"cycles":     structpb.NewNumberValue(float64(st.Cycles)),
		"knownPeers": structpb.NewNumberValue(float64(st.KnownPeers)),
	}
	if !st.NextCycle.IsZero() {
		fields["nextCycle"] = structpb.NewStringValue(st.NextCycle.UTC().Format(time.RFC3339Nano))
	}
	if !st.LastCycle.IsZero() {
		fields["lastCycle"] = structpb.NewStringValue(st.LastCycle.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

var _ kotlin.BroadcastReceiver = (*Scheduler)(nil)
