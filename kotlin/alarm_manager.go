package kotlin

import (
	"fmt"
	"sync"
	"time"
)

// Intent carries a target component and integer extras to a BroadcastReceiver.
type Intent struct {
	Component string
	extras    map[string]int
}

// NewIntent creates an explicit intent for component.
func NewIntent(component string) *Intent {
	return &Intent{Component: component, extras: make(map[string]int)}
}

// PutExtra stores an integer extra and returns the intent for chaining.
func (i *Intent) PutExtra(key string, value int) *Intent {
	i.extras[key] = value
	return i
}

// GetIntExtra returns the extra stored under key, or defaultValue.
func (i *Intent) GetIntExtra(key string, defaultValue int) int {
	if v, ok := i.extras[key]; ok {
		return v
	}
	return defaultValue
}

func (i *Intent) clone() *Intent {
	c := NewIntent(i.Component)
	for k, v := range i.extras {
		c.extras[k] = v
	}
	return c
}

// BroadcastReceiver matches Android's BroadcastReceiver entrypoint.
type BroadcastReceiver interface {
	OnReceive(intent *Intent)
}

// PendingIntent matches Android's PendingIntent.getBroadcast token.
// Two pending intents are the same wake request when component and request code
// match; extras are not part of the identity.
type PendingIntent struct {
	requestCode int
	intent      *Intent
	receiver    BroadcastReceiver
}

// GetBroadcast creates a broadcast pending intent with FLAG_UPDATE_CURRENT semantics.
// Matches: PendingIntent.getBroadcast(context, requestCode, intent, FLAG_UPDATE_CURRENT)
func GetBroadcast(receiver BroadcastReceiver, requestCode int, intent *Intent) *PendingIntent {
	return &PendingIntent{requestCode: requestCode, intent: intent.clone(), receiver: receiver}
}

// Key is the identity used for replacement and cancellation.
func (p *PendingIntent) Key() string {
	return fmt.Sprintf("%s#%d", p.intent.Component, p.requestCode)
}

// RequestCode returns the request code the intent was created with.
func (p *PendingIntent) RequestCode() int {
	return p.requestCode
}

// Intent returns a copy of the wrapped intent.
func (p *PendingIntent) Intent() *Intent {
	return p.intent.clone()
}

// Send delivers the intent to its receiver.
func (p *PendingIntent) Send() {
	if p.receiver != nil {
		p.receiver.OnReceive(p.intent.clone())
	}
}

// AlarmManager matches Android's AlarmManager for RTC_WAKEUP exact alarms.
type AlarmManager struct {
	clock  Clock
	mu     sync.Mutex
	alarms map[string]*alarm
}

type alarm struct {
	triggerAt time.Time
	operation *PendingIntent
	timer     Timer
}

// NewAlarmManager creates an alarm manager driven by clock.
func NewAlarmManager(clock Clock) *AlarmManager {
	return &AlarmManager{clock: clock, alarms: make(map[string]*alarm)}
}

// Now returns the current wall time of the alarm clock (System.currentTimeMillis).
func (m *AlarmManager) Now() time.Time {
	return m.clock.Now()
}

// SetExactAndAllowWhileIdle schedules operation at triggerAt, replacing any alarm with
// the same identity.
// Matches: alarmManager.setExactAndAllowWhileIdle(RTC_WAKEUP, triggerAtMillis, operation)
func (m *AlarmManager) SetExactAndAllowWhileIdle(triggerAt time.Time, operation *PendingIntent) {
	key := operation.Key()
	a := &alarm{triggerAt: triggerAt, operation: operation}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.alarms[key]; ok {
		prev.timer.Stop()
	}
	a.timer = m.clock.AfterFunc(triggerAt.Sub(m.clock.Now()), func() { m.fire(key, a) })
	m.alarms[key] = a
}

// Cancel removes any alarm matching operation's identity.
// Matches: alarmManager.cancel(operation)
func (m *AlarmManager) Cancel(operation *PendingIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := operation.Key()
	if a, ok := m.alarms[key]; ok {
		a.timer.Stop()
		delete(m.alarms, key)
	}
}

// NextAlarm returns the trigger time and pending intent scheduled under operation's identity.
func (m *AlarmManager) NextAlarm(operation *PendingIntent) (time.Time, *PendingIntent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[operation.Key()]
	if !ok {
		return time.Time{}, nil, false
	}
	return a.triggerAt, a.operation, true
}

// Pending returns the number of scheduled alarms.
func (m *AlarmManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alarms)
}

func (m *AlarmManager) fire(key string, a *alarm) {
	m.mu.Lock()
	if m.alarms[key] != a {
		m.mu.Unlock()
		return
	}
	delete(m.alarms, key)
	m.mu.Unlock()

	a.operation.Send()
}
