package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/quickorder/pkg/auth"
	"github.com/example/quickorder/pkg/models"
	"go.uber.org/zap"
)

// Messages handled by the session actor. Every session event goes through
// the mailbox, so a Session never needs its own locking.

type SignIn struct {
	Identity auth.Identity
}

type SignOut struct{}

type NavigateStore struct {
	StoreID string
}

type NavigateAdmin struct{}

type GoHome struct{}

type OpenURL struct {
	StoreID string
}

type Back struct{}

type Forward struct{}

// TrackOrder pins the order the viewer is following, typically right after
// placing or opening it.
type TrackOrder struct {
	Order *models.Order
}

type GetState struct{}

// StateResponse carries the post-event snapshot. LoginRequired means the
// navigation was held and the client must show the login prompt.
type StateResponse struct {
	State         State
	LoginRequired bool
	Err           string
}

// SessionActor owns one viewer's Session.
type SessionActor struct {
	session *Session
	logger  *zap.Logger
	timeout time.Duration
}

func (a *SessionActor) Receive(ctx actor.Context) {
	callCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	switch msg := ctx.Message().(type) {
	case *SignIn:
		a.respond(ctx, a.session.SignIn(callCtx, msg.Identity))

	case *SignOut:
		a.session.SignOut(callCtx)
		a.respond(ctx, nil)

	case *NavigateStore:
		a.respond(ctx, a.session.NavigateToStore(callCtx, msg.StoreID))

	case *NavigateAdmin:
		a.respond(ctx, a.session.NavigateToAdmin(callCtx))

	case *GoHome:
		a.session.GoHome(callCtx)
		a.respond(ctx, nil)

	case *OpenURL:
		a.respond(ctx, a.session.Open(callCtx, msg.StoreID))

	case *Back:
		a.respond(ctx, a.session.Back(callCtx))

	case *Forward:
		a.respond(ctx, a.session.Forward(callCtx))

	case *TrackOrder:
		a.session.TrackOrder(msg.Order)
		a.respond(ctx, nil)

	case *GetState:
		a.respond(ctx, nil)

	case *actor.Started:
		a.logger.Debug("Session actor started")

	case *actor.Stopping:
		a.session.clearStore(callCtx)

	case *actor.Stopped:
		a.logger.Debug("Session actor stopped")
	}
}

func (a *SessionActor) respond(ctx actor.Context, err error) {
	resp := &StateResponse{State: a.session.Snapshot()}
	switch {
	case err == nil:
	case err == ErrLoginRequired:
		resp.LoginRequired = true
	default:
		resp.Err = err.Error()
	}
	ctx.Respond(resp)
}

// Manager spawns one actor per session id and routes requests to it.
type Manager struct {
	system  *actor.ActorSystem
	factory func() *Session
	logger  *zap.Logger
	timeout time.Duration

	mu   sync.Mutex
	pids map[string]*actor.PID
}

func NewManager(factory func() *Session, logger *zap.Logger) *Manager {
	return &Manager{
		system:  actor.NewActorSystem(),
		factory: factory,
		logger:  logger,
		timeout: 5 * time.Second,
		pids:    make(map[string]*actor.PID),
	}
}

func (m *Manager) pid(sessionID string) (*actor.PID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid, ok := m.pids[sessionID]; ok {
		return pid, nil
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return &SessionActor{
			session: m.factory(),
			logger:  m.logger.Named("session-actor"),
			timeout: m.timeout,
		}
	})
	pid, err := m.system.Root.SpawnNamed(props, "session-"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn session actor: %w", err)
	}
	m.pids[sessionID] = pid
	return pid, nil
}

// Dispatch sends a session event and waits for the resulting snapshot.
func (m *Manager) Dispatch(sessionID string, msg interface{}) (*StateResponse, error) {
	pid, err := m.pid(sessionID)
	if err != nil {
		return nil, err
	}
	future := m.system.Root.RequestFuture(pid, msg, m.timeout)
	result, err := future.Result()
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	resp, ok := result.(*StateResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected session response %T", result)
	}
	return resp, nil
}

// End stops a session actor and forgets it.
func (m *Manager) End(sessionID string) {
	m.mu.Lock()
	pid, ok := m.pids[sessionID]
	if ok {
		delete(m.pids, sessionID)
	}
	m.mu.Unlock()
	if ok {
		m.system.Root.Stop(pid)
	}
}

// Shutdown stops every live session actor.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	pids := make([]*actor.PID, 0, len(m.pids))
	for _, pid := range m.pids {
		pids = append(pids, pid)
	}
	m.pids = make(map[string]*actor.PID)
	m.mu.Unlock()
	for _, pid := range pids {
		m.system.Root.Stop(pid)
	}
}
