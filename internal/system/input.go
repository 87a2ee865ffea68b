package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/skillcast/server/internal/core/system"
	"github.com/skillcast/server/internal/gate"
	"github.com/skillcast/server/internal/net"
	"github.com/skillcast/server/internal/net/proto"
	"github.com/skillcast/server/internal/persist"
	"github.com/skillcast/server/internal/skill"
	"github.com/skillcast/server/internal/world"
)

// InputSystem drains message queues from all sessions and dispatches them
// through the registry. Phase 0 (Input).
type InputSystem struct {
	netServer   *net.Server
	registry    *proto.Registry
	store       *net.SessionStore
	maxPerTick  int
	worldState  *world.State
	manager     *skill.Manager
	gate        *gate.Tracker
	accountRepo *persist.AccountRepo // nil when the database is disabled
	log         *zap.Logger
}

func NewInputSystem(
	netServer *net.Server,
	registry *proto.Registry,
	store *net.SessionStore,
	maxPerTick int,
	worldState *world.State,
	manager *skill.Manager,
	gateTracker *gate.Tracker,
	accountRepo *persist.AccountRepo,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		netServer:   netServer,
		registry:    registry,
		store:       store,
		maxPerTick:  maxPerTick,
		worldState:  worldState,
		manager:     manager,
		gate:        gateTracker,
		accountRepo: accountRepo,
		log:         log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	// Drain messages from each session (up to maxPerTick per session)
	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			// Drain remaining frames first; a cancel_skill sent just before
			// disconnect must still land.
			for i := 0; i < s.maxPerTick; i++ {
				select {
				case frame := <-sess.InQueue:
					if err := s.registry.Dispatch(sess, sess.State(), frame); err != nil {
						s.log.Debug("訊息分派錯誤 (斷線中)",
							zap.Uint64("session", sess.ID),
							zap.Error(err),
						)
					}
				default:
					goto doneClosing
				}
			}
		doneClosing:
			sess.FlushOutput()
			s.handleDisconnect(sess)
			s.netServer.NotifyDead(id)
			s.store.Remove(id)
			continue
		}

	drain:
		for i := 0; i < s.maxPerTick; i++ {
			select {
			case frame := <-sess.InQueue:
				if err := s.registry.Dispatch(sess, sess.State(), frame); err != nil {
					s.log.Debug("訊息分派錯誤",
						zap.Uint64("session", sess.ID),
						zap.Error(err),
					)
				}
			default:
				break drain
			}
		}
	}

	// 提前 flush：讓 Phase 0 產生的同步回覆立即進入 OutQueue，
	// writeLoop 可在後續 phase 運行時就開始發送。
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// handleDisconnect cleans up a departed connection: the live skill session is
// cancelled, cooldown tracking dropped, the actor removed, and the account
// marked offline.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	if sess.ActorID != 0 {
		s.manager.HandleDisconnect(sess.ActorID)
		s.gate.ClearActor(sess.ActorID)
		s.worldState.Remove(sess.ActorID)
	}

	if sess.AccountName != "" && s.accountRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.accountRepo.SetOnline(ctx, sess.AccountName, false)
		cancel()
	}

	s.log.Info("玩家離線",
		zap.Uint64("session", sess.ID),
		zap.Int32("actor", sess.ActorID),
	)
}

// SessionCount returns the current number of active sessions.
func (s *InputSystem) SessionCount() int {
	return s.store.Count()
}
