// Package mirror keeps the client's copy of server-authoritative game state.
//
// The mirror never computes game state itself. Every successful read replaces
// the whole snapshot, and every successful mutating call is followed by a full
// re-read, so the local copy is at most one round trip behind the server.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tatianab/codebound/internal/client"
	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
	"github.com/tatianab/codebound/internal/telemetry"
)

// Transport is the server contract the mirror needs. *client.Client implements it.
type Transport interface {
	Login(ctx context.Context, identifier string) (client.Reply, error)
	Register(ctx context.Context, displayName, identifier string) (client.Reply, error)
	GameState(ctx context.Context) (models.SessionState, error)
	AvailableActions(ctx context.Context) ([]string, error)
	Action(ctx context.Context, action, target string) (client.Reply, error)
	Restart(ctx context.Context) (client.Reply, error)
	SaveGame(ctx context.Context, name string) (client.Reply, error)
	ListSaves(ctx context.Context) (client.SavesReply, error)
	LoadGame(ctx context.Context, saveID string) (client.Reply, error)
	DeleteSave(ctx context.Context, saveID string) (client.Reply, error)
}

// Op names a user-triggered operation. At most one operation of each kind runs
// at a time. Refresh and RefreshActions are reads and are not guarded; the
// sequence check orders their results instead.
type Op string

const (
	OpAction    Op = "action"
	OpRestart   Op = "restart"
	OpSave      Op = "save"
	OpListSaves Op = "list-saves"
	OpLoad      Op = "load"
	OpDelete    Op = "delete"
	OpLogin     Op = "login"
	OpRegister  Op = "register"
)

var (
	// ErrBusy is returned when an operation of the same kind is still in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrStale is returned when a snapshot arrives after a newer one was applied.
	ErrStale = errors.New("stale snapshot discarded")
)

// BusyMessage is shown when a repeated trigger is dropped.
const BusyMessage = "Please wait, the previous request is still running."

// ValidationError is missing or bad user input, caught before any request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type fallback struct {
	failed  string // server said success:false without a message
	errored string // transport or decoding failure
}

var fallbacks = map[Op]fallback{
	OpAction:    {"Action failed!", "Error performing action!"},
	OpRestart:   {"Failed to restart game!", "Error restarting game!"},
	OpSave:      {"Failed to save game!", "Error saving game!"},
	OpListSaves: {"Failed to list saves!", "Error listing saves!"},
	OpLoad:      {"Failed to load game!", "Error loading game!"},
	OpDelete:    {"Failed to delete save!", "Error deleting save!"},
	OpLogin:     {"Login failed!", "Connection error. Please try again."},
	OpRegister:  {"Registration failed!", "Connection error. Please try again."},
}

// Outcome is how a user-triggered operation ended. Message is always fit to show.
type Outcome struct {
	Op      Op
	Applied bool
	Message string
	Err     error
}

// Options tune the synchronization policy.
type Options struct {
	// AllowStale applies every snapshot in completion order, so a slow
	// response can overwrite a newer one. By default such responses are dropped.
	AllowStale bool
	// Now stamps default save names.
	Now    func() time.Time
	Logger *log.Logger
}

type Mirror struct {
	transport Transport
	opts      Options
	tracer    trace.Tracer

	issued atomic.Uint64

	mu      sync.Mutex
	state   models.SessionState
	loaded  bool
	applied uint64
	pending map[Op]bool
	saves   []models.SaveSummary // last successful listing
}

func New(t Transport, opts Options) *Mirror {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Mirror{
		transport: t,
		opts:      opts,
		tracer:    telemetry.Tracer("mirror"),
		pending:   make(map[Op]bool),
	}
}

// Snapshot returns a copy of the current state and whether any fetch has landed yet.
func (m *Mirror) Snapshot() (models.SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), m.loaded
}

// Pending reports whether an operation of the given kind is in flight.
func (m *Mirror) Pending(op Op) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[op]
}

// Refresh pulls the full session and replaces the local copy. On failure the
// previous state stays as it was; the next timer tick is the retry.
func (m *Mirror) Refresh(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "mirror.refresh")
	defer span.End()

	seq := m.issued.Add(1)
	snapshot, err := m.transport.GameState(ctx)
	if err != nil {
		m.opts.Logger.Printf("mirror: refresh failed: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return fmt.Errorf("refresh: %w", err)
	}
	if err := m.replace(seq, snapshot); err != nil {
		span.SetAttributes(attribute.Bool("stale", true))
		return err
	}
	return nil
}

// RefreshActions pulls the available action ids. Failure keeps the old set.
func (m *Mirror) RefreshActions(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "mirror.refresh_actions")
	defer span.End()

	actions, err := m.transport.AvailableActions(ctx)
	if err != nil {
		m.opts.Logger.Printf("mirror: update actions failed: %v", err)
		span.RecordError(err)
		return fmt.Errorf("update actions: %w", err)
	}

	m.mu.Lock()
	m.state.AvailableActions = actions
	m.mu.Unlock()
	return nil
}

// replace swaps in a full snapshot. seq is the issue order of the request that
// produced it; anything older than what is already shown is dropped.
func (m *Mirror) replace(seq uint64, snapshot models.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opts.AllowStale && seq < m.applied {
		m.opts.Logger.Printf("mirror: dropping snapshot %d, already showing %d", seq, m.applied)
		return ErrStale
	}
	m.state = snapshot
	m.applied = max(m.applied, seq)
	m.loaded = true
	return nil
}

// Resync re-reads the session and the action list.
func (m *Mirror) Resync(ctx context.Context) {
	// errors are logged by the calls; a stale drop just means newer data is shown
	_ = m.Refresh(ctx)
	_ = m.RefreshActions(ctx)
}

// Submit sends an action. On success the mirror re-reads everything; the
// reply's own payload is not taken as the new state.
func (m *Mirror) Submit(ctx context.Context, action, target string) Outcome {
	if strings.TrimSpace(action) == "" {
		return invalid(OpAction, "No action selected")
	}
	return m.mutate(ctx, OpAction, false, func(ctx context.Context) (client.Reply, error) {
		return m.transport.Action(ctx, action, target)
	})
}

// Choose picks a story choice. The stage only changes once the server says so.
func (m *Mirror) Choose(ctx context.Context, key string) Outcome {
	if strings.TrimSpace(key) == "" {
		return invalid(OpAction, "No choice selected")
	}
	return m.Submit(ctx, story.ChoiceAction, key)
}

// Restart resets the game on the server and adopts the state it returns.
func (m *Mirror) Restart(ctx context.Context) Outcome {
	return m.mutate(ctx, OpRestart, true, m.transport.Restart)
}

// Save stores the current game server-side. A blank name gets a dated default.
func (m *Mirror) Save(ctx context.Context, name string) Outcome {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSaveName(m.opts.Now())
	}
	return m.mutate(ctx, OpSave, false, func(ctx context.Context) (client.Reply, error) {
		return m.transport.SaveGame(ctx, name)
	})
}

// Load restores a save and adopts the state the server returns.
func (m *Mirror) Load(ctx context.Context, saveID string) Outcome {
	if saveID == "" {
		return invalid(OpLoad, "Select a save to load")
	}
	return m.mutate(ctx, OpLoad, true, func(ctx context.Context) (client.Reply, error) {
		return m.transport.LoadGame(ctx, saveID)
	})
}

// ListSaves fetches save summaries. It changes nothing locally.
func (m *Mirror) ListSaves(ctx context.Context) ([]models.SaveSummary, Outcome) {
	if err := m.begin(OpListSaves); err != nil {
		return nil, busy(OpListSaves)
	}
	defer m.end(OpListSaves)

	ctx, span := m.tracer.Start(ctx, "mirror.list_saves")
	defer span.End()

	reply, err := m.transport.ListSaves(ctx)
	if err != nil {
		return nil, m.transportFailure(span, OpListSaves, err)
	}
	if !reply.Success {
		return nil, m.serverFailure(span, OpListSaves, reply.Message)
	}
	m.mu.Lock()
	m.saves = slices.Clone(reply.Saves)
	m.mu.Unlock()
	return reply.Saves, Outcome{Op: OpListSaves, Applied: true, Message: reply.Message}
}

// Delete removes a save, then returns the refreshed listing. If the relist
// fails, the last known listing without the deleted save is returned.
func (m *Mirror) Delete(ctx context.Context, saveID string) ([]models.SaveSummary, Outcome) {
	if saveID == "" {
		return nil, invalid(OpDelete, "Select a save to delete")
	}
	out := m.mutate(ctx, OpDelete, false, func(ctx context.Context) (client.Reply, error) {
		return m.transport.DeleteSave(ctx, saveID)
	})
	if !out.Applied {
		return nil, out
	}
	saves, listed := m.ListSaves(ctx)
	if !listed.Applied {
		// the delete went through; only the listing is out of date
		m.opts.Logger.Printf("mirror: relist after delete: %s", listed.Message)
		m.mu.Lock()
		m.saves = slices.DeleteFunc(m.saves, func(s models.SaveSummary) bool { return s.ID == saveID })
		saves = slices.Clone(m.saves)
		m.mu.Unlock()
	}
	return saves, out
}

// Login authenticates with the server.
func (m *Mirror) Login(ctx context.Context, identifier string) Outcome {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return invalid(OpLogin, "Please enter your identifier")
	}
	return m.authenticate(ctx, OpLogin, func(ctx context.Context) (client.Reply, error) {
		return m.transport.Login(ctx, identifier)
	})
}

// Register creates an account.
func (m *Mirror) Register(ctx context.Context, displayName, identifier string) Outcome {
	displayName, identifier = strings.TrimSpace(displayName), strings.TrimSpace(identifier)
	if displayName == "" || identifier == "" {
		return invalid(OpRegister, "Please fill in all fields")
	}
	return m.authenticate(ctx, OpRegister, func(ctx context.Context) (client.Reply, error) {
		return m.transport.Register(ctx, displayName, identifier)
	})
}

func (m *Mirror) authenticate(ctx context.Context, op Op, call func(context.Context) (client.Reply, error)) Outcome {
	if err := m.begin(op); err != nil {
		return busy(op)
	}
	defer m.end(op)

	ctx, span := m.tracer.Start(ctx, "mirror."+string(op))
	defer span.End()

	reply, err := call(ctx)
	if err != nil {
		return m.transportFailure(span, op, err)
	}
	if !reply.Success {
		return m.serverFailure(span, op, reply.Message)
	}
	return Outcome{Op: op, Applied: true, Message: reply.Message}
}

// mutate runs one state-changing call: Idle -> Pending -> Applied|Failed -> Idle.
// With adopt set, a game_state in the reply is applied before the resync.
func (m *Mirror) mutate(ctx context.Context, op Op, adopt bool, call func(context.Context) (client.Reply, error)) Outcome {
	if err := m.begin(op); err != nil {
		return busy(op)
	}
	defer m.end(op)

	ctx, span := m.tracer.Start(ctx, "mirror."+string(op))
	defer span.End()

	seq := m.issued.Add(1)
	reply, err := call(ctx)
	if err != nil {
		return m.transportFailure(span, op, err)
	}
	if !reply.Success {
		return m.serverFailure(span, op, reply.Message)
	}

	if adopt && reply.GameState != nil {
		if err := m.replace(seq, *reply.GameState); err != nil {
			m.opts.Logger.Printf("mirror: %s reply not applied: %v", op, err)
		}
	}
	m.Resync(ctx)
	return Outcome{Op: op, Applied: true, Message: reply.Message}
}

func (m *Mirror) transportFailure(span trace.Span, op Op, err error) Outcome {
	m.opts.Logger.Printf("mirror: %s: %v", op, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "transport failure")
	return Outcome{Op: op, Message: fallbacks[op].errored, Err: err}
}

func (m *Mirror) serverFailure(span trace.Span, op Op, message string) Outcome {
	span.SetStatus(codes.Error, "rejected by server")
	if message == "" {
		message = fallbacks[op].failed
	}
	return Outcome{Op: op, Message: message}
}

func (m *Mirror) begin(op Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[op] {
		return ErrBusy
	}
	m.pending[op] = true
	return nil
}

func (m *Mirror) end(op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, op)
}

func invalid(op Op, message string) Outcome {
	return Outcome{Op: op, Message: message, Err: &ValidationError{Message: message}}
}

func busy(op Op) Outcome {
	return Outcome{Op: op, Message: BusyMessage, Err: ErrBusy}
}

// DefaultSaveName is used when the player leaves the save name blank.
func DefaultSaveName(t time.Time) string {
	return "Game Save " + t.Format("1/2/2006, 3:04:05 PM")
}
