package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ninomaruszewski/roycemorebot/internal/audit"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
	"github.com/ninomaruszewski/roycemorebot/internal/platform"
)

// Command outcomes reported to metrics and the audit trail.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeUsage    = "usage"
	OutcomeDenied   = "denied"
	OutcomeRejected = "rejected"
	OutcomePanic    = "panic"
)

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives one observation per dispatched command.
// *influxdb.Client satisfies it.
type Metrics interface {
	WriteCommandMetric(command, extension, outcome string, duration time.Duration)
}

// Auditor records privileged command invocations.
// *audit.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, action, entityType, entityID, userID string, details map[string]any)
}

// ReadyFunc is called once the platform session is ready and the
// dispatcher is open.
type ReadyFunc func(ctx context.Context, ev platform.ReadyEvent)

type entry struct {
	cmd   Command
	owner string
}

// Dispatcher routes messages to registered commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Each command runs on its own goroutine; Wait blocks until all finish.
type Dispatcher struct {
	prefix string
	sender platform.Sender
	emoji  config.EmojiConfig

	mu       sync.RWMutex
	commands map[string]*entry   // name or alias → entry
	owners   map[string][]string // owner → canonical names
	open     bool
	ready    []ReadyFunc
	pending  *platform.ReadyEvent

	inflight sync.WaitGroup
	runCtx   context.Context //nolint:containedctx // parent of every handler context
	abort    context.CancelFunc

	logger  Logger
	metrics Metrics
	auditor Auditor
}

// New creates a closed Dispatcher.
//
// Parameters:
//   - prefix: Command prefix, e.g. "!"
//   - sender: Where replies are sent
//   - emoji: Emoji used in denial and error replies
func New(prefix string, sender platform.Sender, emoji config.EmojiConfig) *Dispatcher {
	runCtx, abort := context.WithCancel(context.Background())
	return &Dispatcher{
		prefix:   prefix,
		sender:   sender,
		emoji:    emoji,
		commands: make(map[string]*entry),
		owners:   make(map[string][]string),
		runCtx:   runCtx,
		abort:    abort,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetMetrics sets the optional command metrics sink.
func (d *Dispatcher) SetMetrics(m Metrics) {
	d.metrics = m
}

// SetAuditor sets the optional auditor for privileged commands.
func (d *Dispatcher) SetAuditor(a Auditor) {
	d.auditor = a
}

// Register adds cmds under owner. Either every command is registered or none is.
//
// Returns:
//   - error: ErrInvalidCommand or ErrCommandConflict
func (d *Dispatcher) Register(owner string, cmds []Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool)
	for _, cmd := range cmds {
		if cmd.Name == "" || cmd.Handler == nil {
			return fmt.Errorf("%w: %s: name and handler are required", ErrInvalidCommand, owner)
		}
		for _, name := range cmd.names() {
			if name == "" {
				return fmt.Errorf("%w: %s: empty alias on %s", ErrInvalidCommand, owner, cmd.Name)
			}
			if seen[name] {
				return fmt.Errorf("%w: %q declared twice by %s", ErrCommandConflict, name, owner)
			}
			if existing, ok := d.commands[name]; ok {
				return fmt.Errorf("%w: %q already registered by %s", ErrCommandConflict, name, existing.owner)
			}
			seen[name] = true
		}
	}

	for _, cmd := range cmds {
		e := &entry{cmd: cmd, owner: owner}
		for _, name := range cmd.names() {
			d.commands[name] = e
		}
		d.owners[owner] = append(d.owners[owner], cmd.names()[0])
	}
	return nil
}

// Unregister removes every command registered by owner and returns their names.
func (d *Dispatcher) Unregister(owner string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := d.owners[owner]
	for _, name := range names {
		e, ok := d.commands[name]
		if !ok {
			continue
		}
		for _, n := range e.cmd.names() {
			delete(d.commands, n)
		}
	}
	delete(d.owners, owner)
	return names
}

// Lookup returns the command registered under name or alias.
func (d *Dispatcher) Lookup(name string) (cmd Command, owner string, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.commands[strings.ToLower(name)]
	if !ok {
		return Command{}, "", false
	}
	return e.cmd, e.owner, true
}

// Commands returns every registered command sorted by name.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Command
	for _, names := range d.owners {
		for _, name := range names {
			out = append(out, d.commands[name].cmd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Prefix returns the command prefix.
func (d *Dispatcher) Prefix() string {
	return d.prefix
}

// OnReady registers a callback for the platform ready event.
func (d *Dispatcher) OnReady(fn ReadyFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = append(d.ready, fn)
}

// Open starts dispatching. A ready event that arrived while closed is
// delivered now.
func (d *Dispatcher) Open(ctx context.Context) {
	d.mu.Lock()
	d.open = true
	pending := d.pending
	d.pending = nil
	callbacks := slices.Clone(d.ready)
	d.mu.Unlock()

	if pending != nil {
		for _, fn := range callbacks {
			fn(ctx, *pending)
		}
	}
}

// Close stops dispatching. Commands already running continue; use Wait.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.pending = nil
}

// IsOpen reports whether messages are being dispatched.
func (d *Dispatcher) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.open
}

// Wait blocks until every running command has returned or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running commands: %w", ctx.Err())
	}
}

// Abort cancels the context of every running command.
func (d *Dispatcher) Abort() {
	d.abort()
}

// HandleReady implements platform.EventHandler.
func (d *Dispatcher) HandleReady(ctx context.Context, ev platform.ReadyEvent) {
	d.mu.Lock()
	if !d.open {
		d.pending = &ev
		d.mu.Unlock()
		return
	}
	callbacks := slices.Clone(d.ready)
	d.mu.Unlock()

	for _, fn := range callbacks {
		fn(ctx, ev)
	}
}

// HandleMessage implements platform.EventHandler. Commands run on their own
// goroutine; messages that are not commands, or arrive while closed, are dropped.
func (d *Dispatcher) HandleMessage(_ context.Context, msg platform.Message) {
	name, args, ok := parse(d.prefix, msg.Content)
	if !ok {
		return
	}

	d.mu.RLock()
	if !d.open {
		d.mu.RUnlock()
		d.logger.Debug("dropping command while closed", "command", name)
		return
	}
	e, found := d.commands[name]
	if !found {
		d.mu.RUnlock()
		return
	}
	// Add under the lock so Close followed by Wait cannot miss this command.
	d.inflight.Add(1)
	d.mu.RUnlock()

	req := &Request{
		Message: msg,
		Command: strings.ToLower(e.cmd.Name),
		Invoked: name,
		Args:    args,
		Owner:   e.owner,
		sender:  d.sender,
	}

	go func() {
		defer d.inflight.Done()
		d.run(e.cmd, req)
	}()
}

func (d *Dispatcher) run(cmd Command, req *Request) {
	ctx := audit.WithActor(d.runCtx, req.Message.Author.ID)
	start := time.Now()

	outcome := d.check(ctx, cmd, req)
	if outcome == "" {
		outcome = d.invoke(ctx, cmd, req)
	}
	duration := time.Since(start)

	d.logger.Info("command handled",
		"command", req.Command,
		"extension", req.Owner,
		"user", req.Message.Author.ID,
		"outcome", outcome,
		"duration", duration,
	)
	if d.metrics != nil {
		d.metrics.WriteCommandMetric(req.Command, req.Owner, outcome, duration)
	}
	if d.auditor != nil && cmd.RequiredRoles.Len() > 0 {
		d.auditor.Record(ctx, audit.ActionCommand, audit.EntityCommand, req.Command, req.Message.Author.ID,
			map[string]any{"outcome": outcome, "args": req.Args, "channel_id": req.Message.ChannelID})
	}
}

// check applies GuildOnly and RequiredRoles. It returns "" when the command may run.
func (d *Dispatcher) check(ctx context.Context, cmd Command, req *Request) string {
	if cmd.GuildOnly && req.Message.IsDirect() {
		reply := cmd.GuildOnlyReply
		if reply == "" {
			reply = "This command can only be used in a server."
		}
		d.reply(ctx, req, d.emoji.No+" "+reply)
		return OutcomeRejected
	}
	if cmd.RequiredRoles.Len() > 0 && !cmd.RequiredRoles.ContainsAny(req.Message.RoleIDs) {
		reply := cmd.DeniedReply
		if reply == "" {
			reply = "You do not have permission to use this command."
		}
		d.reply(ctx, req, d.emoji.No+" "+reply)
		return OutcomeDenied
	}
	return ""
}

// invoke runs the handler, turning errors and panics into replies.
func (d *Dispatcher) invoke(ctx context.Context, cmd Command, req *Request) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panic recovered", "command", req.Command, "panic", r)
			d.reply(ctx, req, d.emoji.Warning+" Something went wrong running that command.")
			outcome = OutcomePanic
		}
	}()

	err := cmd.Handler(ctx, req)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrUsage):
		usage := cmd.Usage
		if usage == "" {
			usage = cmd.Name
		}
		d.reply(ctx, req, fmt.Sprintf("%s Usage: `%s%s`", d.emoji.Warning, d.prefix, usage))
		return OutcomeUsage
	default:
		d.logger.Warn("command failed", "command", req.Command, "error", err)
		d.reply(ctx, req, fmt.Sprintf("%s There was an error running that command:\n```\n%s\n```", d.emoji.Warning, err))
		return OutcomeError
	}
}

func (d *Dispatcher) reply(ctx context.Context, req *Request, content string) {
	if err := req.Reply(ctx, content); err != nil {
		d.logger.Warn("reply failed", "command", req.Command, "channel", req.Message.ChannelID, "error", err)
	}
}
