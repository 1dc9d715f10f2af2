// Package coordinator implements the centralized configuration server that
// tracks Redis master/replica roles and orchestrates failover across a
// fleet of bus-connected clients.
//
// The whole of its state is owned by a single goroutine, running Run's
// select loop, generalizing the teacher's ticker-driven Orchestrator.Run
// (pkg/orchestrator/orchestrator.go) from a polling reconcile loop to an
// event-driven one: everything that can change coordinator state arrives as
// a value on events, never as a direct method call that mutates a field
// from another goroutine.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/avosa/beetle/pkg/bus"
	"github.com/avosa/beetle/pkg/masterfile"
	"github.com/avosa/beetle/pkg/redispool"
	"github.com/avosa/beetle/pkg/registry"
	"github.com/avosa/beetle/pkg/token"
	"github.com/avosa/beetle/pkg/watcher"
)

// Settings bundles the tunables spec.md §6 lists under Configuration that
// the coordinator itself needs, as opposed to the ones consumed by its
// collaborators at construction time (prober timeout, watcher interval and
// retry budget, registry capacity).
type Settings struct {
	// InvalidationTimeout bounds how long a PAUSED round waits for every
	// expected client to ack before the round is cancelled (spec.md
	// §4.5.3 step 4, the "I seconds" timeout).
	InvalidationTimeout time.Duration
	// ClientDeadThreshold is how long an expected client may go unseen
	// before the status endpoint reports it unresponsive.
	ClientDeadThreshold time.Duration
}

// masterAddr is a tiny mutex-guarded holder for the one piece of
// coordinator state a second goroutine legitimately needs to read: the
// watcher's ticking goroutine calls its currentMaster callback on every
// tick. It follows the same narrow exception *token.Mint makes for its own
// field, rather than putting a lock over the rest of the coordinator.
type masterAddr struct {
	mu   sync.RWMutex
	addr string
}

func (m *masterAddr) Get() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.addr
}

func (m *masterAddr) Set(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addr = addr
}

// Coordinator is the state machine described by spec.md §4.5. All fields
// below the collaborators are owned exclusively by the Run loop.
type Coordinator struct {
	settings   Settings
	prober     *redispool.Prober
	publisher  bus.Publisher
	masterFile *masterfile.File
	mint       *token.Mint
	registry   *registry.Registry
	watcher    *watcher.Watcher

	expected map[string]struct{}

	events chan any

	watcherTarget *masterAddr

	state               State
	currentMaster       string
	pongReceived        map[string]struct{}
	invalidatedReceived map[string]struct{}
	invalidationTimer   *time.Timer
}

// New builds a Coordinator and the watcher it drives. retryBudget and
// checkInterval configure the watcher (spec.md §4.3); prober supplies both
// startup classification and the master switch's candidate search.
func New(prober *redispool.Prober, publisher bus.Publisher, masterFile *masterfile.File, mint *token.Mint, reg *registry.Registry, checkInterval time.Duration, retryBudget int, settings Settings) *Coordinator {
	c := &Coordinator{
		settings:      settings,
		prober:        prober,
		publisher:     publisher,
		masterFile:    masterFile,
		mint:          mint,
		registry:      reg,
		events:        make(chan any, 256),
		watcherTarget: &masterAddr{},
	}

	expected := make(map[string]struct{})
	for _, id := range reg.ExpectedIDs() {
		expected[id] = struct{}{}
	}
	c.expected = expected

	c.watcher = watcher.New(prober, checkInterval, retryBudget, c.watcherTarget.Get)
	c.watcher.OnAvailable(c.MasterAvailable)
	c.watcher.OnUnavailable(c.MasterUnavailable)

	return c
}

// Startup determines the initial master (spec.md §4.5.1) without starting
// the event loop. Run calls it before entering the select loop; tests call
// it directly to exercise startup scenarios in isolation.
func (c *Coordinator) Startup(ctx context.Context) error {
	if c.prober.Count() < 2 {
		return &ConfigurationError{Reason: fmt.Sprintf("need at least 2 redis endpoints, got %d", c.prober.Count())}
	}

	addr, err := c.masterFile.Read()
	if err != nil {
		return fmt.Errorf("coordinator: startup: %w", err)
	}

	pool := c.prober.Probe(ctx)

	if addr == "" {
		ep, ok := pool.AutoDetectMaster()
		if !ok {
			return &NoRedisMasterError{MasterCount: len(pool.Masters())}
		}
		c.adoptMaster(ep.Address)
		if err := c.masterFile.Write(ep.Address); err != nil {
			klog.ErrorS(err, "Failed to persist auto-detected master")
			c.publishSystemNotification(ctx, (&PersistenceFailure{Err: err}).Error())
		}
		klog.InfoS("Auto-detected initial master", "addr", ep.Address)
		return nil
	}

	ep, ok := pool.Find(addr)
	if ok && ep.Role == redispool.RoleMaster {
		c.adoptMaster(addr)
		klog.InfoS("Adopted master named by master file", "addr", addr)
		return nil
	}

	if ok && ep.Role == redispool.RoleSlave {
		klog.InfoS("Master file names a demoted slave, beginning switch", "addr", addr)
	} else {
		klog.InfoS("Master file names an unreachable endpoint, beginning switch", "addr", addr)
	}
	c.currentMaster = addr
	c.watcherTarget.Set(addr)
	c.state = StateRunning
	c.initiateMasterSwitch(ctx)
	return nil
}

func (c *Coordinator) adoptMaster(addr string) {
	c.currentMaster = addr
	c.watcherTarget.Set(addr)
	c.state = StateRunning
}

// Run executes Startup and then the single event loop goroutine until ctx
// is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Startup(ctx); err != nil {
		return err
	}

	c.watcher.Start(ctx)
	defer c.watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			c.cancelInvalidationTimeout()
			return nil
		case ev := <-c.events:
			c.step(ctx, ev)
		}
	}
}

func (c *Coordinator) step(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case pongEvent:
		c.handlePong(ctx, e)
	case clientInvalidatedEvent:
		c.handleClientInvalidated(ctx, e)
	case clientStartedEvent:
		c.noteClientActivity(ctx, e.id, "client_started")
	case heartbeatEvent:
		c.noteClientActivity(ctx, e.id, "heartbeat")
	case masterAvailableEvent:
		c.handleMasterAvailable(ctx)
	case masterUnavailableEvent:
		c.handleMasterUnavailable(ctx)
	case invalidationTimeoutEvent:
		c.handleInvalidationTimeout(e)
	case statusRequestEvent:
		e.resp <- c.snapshot()
	}
}

// noteClientActivity implements the shared client_started/heartbeat policy
// (spec.md §4.5.2): known clients are just marked seen, unknown ones are
// recorded and reported.
func (c *Coordinator) noteClientActivity(ctx context.Context, id, kind string) {
	now := time.Now()
	if c.registry.Known(id) {
		c.registry.Seen(id, now)
		return
	}
	c.registry.NoteUnknown(id, now)
	c.publishSystemNotification(ctx, fmt.Sprintf("unknown client %q sent %s", id, kind))
}

func (c *Coordinator) handlePong(ctx context.Context, e pongEvent) {
	if !c.mint.Redeem(e.token) {
		klog.V(2).InfoS("Dropping stale pong", "id", e.id, "token", e.token)
		return
	}

	now := time.Now()
	if !c.registry.Known(e.id) {
		c.registry.NoteUnknown(e.id, now)
		c.publishSystemNotification(ctx, fmt.Sprintf("unknown client %q sent pong", e.id))
		return
	}

	c.registry.Seen(e.id, now)
	if c.state != StatePaused {
		return
	}
	c.pongReceived[e.id] = struct{}{}
	if c.satisfiesExpected(c.pongReceived) {
		klog.V(2).InfoS("All expected clients acked pong", "token", e.token)
	}
}

func (c *Coordinator) handleClientInvalidated(ctx context.Context, e clientInvalidatedEvent) {
	if !c.mint.Redeem(e.token) {
		klog.V(2).InfoS("Dropping stale client_invalidated", "id", e.id, "token", e.token)
		return
	}

	now := time.Now()
	if !c.registry.Known(e.id) {
		c.registry.NoteUnknown(e.id, now)
		c.publishSystemNotification(ctx, fmt.Sprintf("unknown client %q sent client_invalidated", e.id))
		return
	}

	c.registry.Seen(e.id, now)
	if c.state != StatePaused {
		return
	}
	c.invalidatedReceived[e.id] = struct{}{}
	if c.satisfiesExpected(c.invalidatedReceived) {
		c.completeMasterSwitch(ctx)
	}
}

func (c *Coordinator) satisfiesExpected(set map[string]struct{}) bool {
	for id := range c.expected {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// initiateMasterSwitch is the PAUSED-entry procedure (spec.md §4.5.3).
// Entering PAUSED while already PAUSED is a no-op: exactly one round is
// ever open at a time.
func (c *Coordinator) initiateMasterSwitch(ctx context.Context) {
	if c.state == StatePaused {
		return
	}

	c.state = StatePaused
	tok := c.mint.Advance()
	c.pongReceived = make(map[string]struct{})
	c.invalidatedReceived = make(map[string]struct{})

	if len(c.expected) == 0 {
		c.completeMasterSwitch(ctx)
		return
	}

	if err := c.publisher.PublishInvalidate(ctx, tok); err != nil {
		klog.ErrorS((&BusPublishFailure{RoutingKey: bus.RoutingKeyInvalidate, Err: err}), "Publish failed, next round retries implicitly")
	}

	c.armInvalidationTimeout(tok)
}

func (c *Coordinator) armInvalidationTimeout(tok int64) {
	c.cancelInvalidationTimeout()
	c.invalidationTimer = time.AfterFunc(c.settings.InvalidationTimeout, func() {
		c.events <- invalidationTimeoutEvent{token: tok}
	})
}

func (c *Coordinator) cancelInvalidationTimeout() {
	if c.invalidationTimer != nil {
		c.invalidationTimer.Stop()
		c.invalidationTimer = nil
	}
}

// handleInvalidationTimeout implements spec.md §4.5.3 step 4: if the round
// named by token is still open when the timer fires, cancel it and return
// to RUNNING without switching. The token check discards timers left over
// from a round that already closed by other means.
func (c *Coordinator) handleInvalidationTimeout(e invalidationTimeoutEvent) {
	if c.state != StatePaused || !c.mint.Redeem(e.token) {
		return
	}
	klog.InfoS("Invalidation round timed out, returning to running with existing master", "token", e.token, "master", c.currentMaster)
	c.invalidationTimer = nil
	c.pongReceived = nil
	c.invalidatedReceived = nil
	c.state = StateRunning
}

// handleMasterUnavailable is the watcher's escalation callback (spec.md
// §4.5.3's trigger).
func (c *Coordinator) handleMasterUnavailable(ctx context.Context) {
	if c.state == StatePaused {
		return
	}
	klog.InfoS("Master reported unavailable, initiating switch", "addr", c.currentMaster)
	c.initiateMasterSwitch(ctx)
}

// handleMasterAvailable implements spec.md §4.5.5.
func (c *Coordinator) handleMasterAvailable(ctx context.Context) {
	switch c.state {
	case StateRunning:
		// Open question (spec.md §9): this confirming reconfigure names
		// whichever address the freshly probed pool's master-list reports,
		// not current_master. If the pool momentarily shows more than one
		// master (a split-brain the watcher has not yet resolved) this can
		// republish an address other than current_master. That is the
		// observed source behavior; it is preserved here rather than
		// silently substituted with the authoritative field.
		pool := c.prober.Probe(ctx)
		server := c.currentMaster
		if masters := pool.Masters(); len(masters) > 0 {
			server = masters[0].Address
		}
		tok := c.mint.Current()
		if err := c.publisher.PublishReconfigure(ctx, server, tok); err != nil {
			klog.ErrorS((&BusPublishFailure{RoutingKey: bus.RoutingKeyReconfigure, Err: err}), "Confirming publish failed")
		}
	case StatePaused:
		// The watcher recovered before the round completed: a false alarm.
		// Cancel the round and return to RUNNING without switching. We
		// republish nothing here; a confirming reconfigure will follow
		// from the next RUNNING-state watcher tick.
		c.cancelInvalidationTimeout()
		c.pongReceived = nil
		c.invalidatedReceived = nil
		c.state = StateRunning
		klog.InfoS("Master recovered before switch completed, cancelling round", "addr", c.currentMaster)
	}
}

// completeMasterSwitch is spec.md §4.5.4.
func (c *Coordinator) completeMasterSwitch(ctx context.Context) {
	c.cancelInvalidationTimeout()

	pool := c.prober.Probe(ctx)
	oldMaster := c.currentMaster

	candidate, ok := c.selectSwitchCandidate(pool, oldMaster)
	if !ok {
		klog.Warning("No candidate available for master switch, keeping old master nominal")
		c.publishSystemNotification(ctx, fmt.Sprintf("master switch failed: no reachable replacement for %s", oldMaster))
		c.abortSwitch()
		return
	}

	if handle, ok := c.prober.Handle(candidate.Address); ok {
		if err := handle.PromoteToMaster(ctx); err != nil {
			klog.ErrorS(err, "Failed to promote switch candidate", "addr", candidate.Address)
			c.publishSystemNotification(ctx, fmt.Sprintf("failed to promote %s: %v", candidate.Address, err))
			c.abortSwitch()
			return
		}
	}

	c.currentMaster = candidate.Address
	c.watcherTarget.Set(candidate.Address)

	if err := c.masterFile.Write(candidate.Address); err != nil {
		klog.ErrorS(err, "Failed to persist new master")
		c.publishSystemNotification(ctx, (&PersistenceFailure{Err: err}).Error())
	}

	c.demoteStrayMasters(ctx, pool, candidate.Address)

	tok := c.mint.Current()
	if err := c.publisher.PublishReconfigure(ctx, candidate.Address, tok); err != nil {
		klog.ErrorS((&BusPublishFailure{RoutingKey: bus.RoutingKeyReconfigure, Err: err}), "Post-switch publish failed")
	}

	c.pongReceived = nil
	c.invalidatedReceived = nil
	c.state = StateRunning
	c.watcher.Rearm()
	klog.InfoS("Master switch complete", "oldMaster", oldMaster, "newMaster", candidate.Address, "token", tok)
}

func (c *Coordinator) abortSwitch() {
	c.pongReceived = nil
	c.invalidatedReceived = nil
	c.state = StateRunning
}

// selectSwitchCandidate picks the endpoint to promote. It prefers a master
// already present elsewhere in the pool (the startup case, spec.md §8 S5,
// where the master file names a stale demoted address and the pool has
// already settled on someone else) and otherwise falls back to the literal
// rule of spec.md §4.5.4 step 2: the first reachable slave of the old
// master.
func (c *Coordinator) selectSwitchCandidate(pool redispool.Pool, oldMaster string) (redispool.Endpoint, bool) {
	if others := pool.OtherMasters(oldMaster); len(others) > 0 {
		return others[0], true
	}
	if slaves := pool.SlavesOf(oldMaster); len(slaves) > 0 {
		return slaves[0], true
	}
	return redispool.Endpoint{}, false
}

// demoteStrayMasters instructs every reachable master-role endpoint other
// than the newly promoted one to follow it (spec.md §4.5.4 step 4) —
// including the old master itself, if it is still reachable and still
// reporting master role (a split-brain it never noticed).
func (c *Coordinator) demoteStrayMasters(ctx context.Context, pool redispool.Pool, newMaster string) {
	newHandle, ok := c.prober.Handle(newMaster)
	if !ok {
		return
	}
	for _, stray := range pool.OtherMasters(newMaster) {
		h, ok := c.prober.Handle(stray.Address)
		if !ok {
			continue
		}
		if err := h.Follow(ctx, newHandle); err != nil {
			klog.ErrorS(err, "Failed to demote stray master to replica", "addr", stray.Address)
		}
	}
}

func (c *Coordinator) publishSystemNotification(ctx context.Context, message string) {
	klog.InfoS("Publishing system notification", "message", message)
	if err := c.publisher.PublishSystemNotification(ctx, message); err != nil {
		klog.ErrorS((&BusPublishFailure{RoutingKey: bus.RoutingKeySystemNotification, Err: err}), "System notification publish failed")
	}
}
