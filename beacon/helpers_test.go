package beacon

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/user/proximity-beacon/kotlin"
	"github.com/user/proximity-beacon/logger"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testAddress = "AA:BB:CC:DD:EE:01"

// fakeRadio records every call and can inject errors, panics and latency.
type fakeRadio struct {
	mu            sync.Mutex
	ready         bool
	calls         []string
	startSettings []*kotlin.AdvertiseSettings
	startData     []*kotlin.AdvertiseData
	startErr      error
	startPanic    interface{}
	stopErr       error
	openErr       error
	onStart       func()
	server        *fakeGattServer

	delay     time.Duration
	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{ready: true, server: &fakeGattServer{}}
}

func (r *fakeRadio) Address() string { return testAddress }

func (r *fakeRadio) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *fakeRadio) setReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = ready
}

// enter tracks how many radio calls overlap.
func (r *fakeRadio) enter(call string) func() {
	n := r.active.Add(1)
	for {
		max := r.maxActive.Load()
		if n <= max || r.maxActive.CompareAndSwap(max, n) {
			break
		}
	}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return func() { r.active.Add(-1) }
}

func (r *fakeRadio) StartAdvertising(settings *kotlin.AdvertiseSettings, data *kotlin.AdvertiseData, callback kotlin.AdvertiseCallback) error {
	defer r.enter("start")()
	if r.onStart != nil {
		r.onStart()
	}
	r.mu.Lock()
	r.startSettings = append(r.startSettings, settings)
	r.startData = append(r.startData, data)
	err, p := r.startErr, r.startPanic
	r.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return err
}

func (r *fakeRadio) StopAdvertising(callback kotlin.AdvertiseCallback) error {
	defer r.enter("stop")()
	return r.stopErr
}

func (r *fakeRadio) OpenGattServer(callback kotlin.BluetoothGattServerCallback) (GattServer, error) {
	defer r.enter("open")()
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.server, nil
}

func (r *fakeRadio) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (r *fakeRadio) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeGattServer struct {
	mu        sync.Mutex
	services  []*kotlin.BluetoothGattService
	responses []kotlin.GattResponse
	reject    bool
	closed    int
}

func (s *fakeGattServer) GetService(id uuid.UUID) *kotlin.BluetoothGattService {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.UUID == id {
			return svc
		}
	}
	return nil
}

func (s *fakeGattServer) AddService(service *kotlin.BluetoothGattService) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append(s.services, service)
	return true
}

func (s *fakeGattServer) SendResponse(device *kotlin.BluetoothDevice, requestId int, status int, offset int, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.responses = append(s.responses, kotlin.GattResponse{
		Device:    device.Address,
		RequestID: requestId,
		Status:    status,
		Offset:    offset,
		Value:     append([]byte(nil), value...),
	})
	return true
}

func (s *fakeGattServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	s.services = nil
}

func (s *fakeGattServer) serviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.services)
}

func (s *fakeGattServer) lastResponse() (kotlin.GattResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return kotlin.GattResponse{}, false
	}
	return s.responses[len(s.responses)-1], true
}

func (s *fakeGattServer) responseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

// recordingSink is a telemetry.Sink that keeps every report.
type recordingSink struct {
	mu      sync.Mutex
	reports []string
}

func (s *recordingSink) Log(tag, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, tag+": "+message)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) count(substr string) int {
	return strings.Count(b.String(), substr)
}

// captureLogs redirects logger output for the duration of the test.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prevOut := logger.SetOutput(buf)
	prevLevel := logger.GetLevel()
	logger.SetLevel(logger.INFO)
	t.Cleanup(func() {
		logger.SetOutput(prevOut)
		logger.SetLevel(prevLevel)
	})
	return buf
}

// testStack is a scheduler wired to simulated timer and power services.
type testStack struct {
	clock     *kotlin.ManualClock
	alarms    *kotlin.AlarmManager
	power     *kotlin.PowerManager
	sink      *recordingSink
	gateway   *Gateway
	server    *ConnectionServer
	scheduler *Scheduler
}

func newTestStack(radio Radio) *testStack {
	clock := kotlin.NewManualClock(testEpoch)
	st := &testStack{
		clock:  clock,
		alarms: kotlin.NewAlarmManager(clock),
		power:  kotlin.NewPowerManager(clock),
		sink:   &recordingSink{},
	}
	st.gateway = NewGateway(radio, st.sink)
	st.server = NewConnectionServer(st.gateway, DefaultServiceUUID, st.sink)
	st.scheduler = NewScheduler(st.alarms, st.power, st.gateway, st.server, DefaultIdentity(), st.sink)
	return st
}

// nextWake returns the armed wake-up, if any.
func (st *testStack) nextWake() (time.Time, int, bool) {
	at, op, ok := st.alarms.NextAlarm(st.scheduler.pendingIntent(CycleConfig{Interval: time.Millisecond}))
	if !ok {
		return time.Time{}, 0, false
	}
	return at, op.Intent().GetIntExtra(IntervalExtra, -1), true
}
