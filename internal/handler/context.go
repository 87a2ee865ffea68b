// Package handler holds the message handlers dispatched from the input
// system. Handlers run on the game loop goroutine and may touch world state
// freely.
package handler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/skillcast/server/internal/config"
	"github.com/skillcast/server/internal/data"
	"github.com/skillcast/server/internal/gate"
	"github.com/skillcast/server/internal/net"
	"github.com/skillcast/server/internal/net/proto"
	"github.com/skillcast/server/internal/persist"
	"github.com/skillcast/server/internal/skill"
	"github.com/skillcast/server/internal/world"
)

// Deps holds shared dependencies injected into all message handlers.
type Deps struct {
	Config      *config.Config
	Log         *zap.Logger
	World       *world.State
	Skills      *data.SkillTable
	Manager     *skill.Manager
	Gate        *gate.Tracker
	AccountRepo *persist.AccountRepo // nil when the database is disabled
}

// RegisterAll registers all message handlers into the registry.
func RegisterAll(reg *proto.Registry, deps *Deps) {
	reg.Register(proto.CHello,
		[]proto.SessionState{proto.StateHello},
		func(sess any, data json.RawMessage) {
			HandleHello(sess.(*net.Session), data, deps)
		},
	)

	readyStates := []proto.SessionState{proto.StateReady}

	reg.Register(proto.CUseSkill, readyStates,
		func(sess any, data json.RawMessage) {
			HandleUseSkill(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(proto.CAdvanceCombo, readyStates,
		func(sess any, data json.RawMessage) {
			HandleAdvanceCombo(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(proto.CCancelSkill, readyStates,
		func(sess any, data json.RawMessage) {
			HandleCancelSkill(sess.(*net.Session), data, deps)
		},
	)
	reg.Register(proto.CPing,
		[]proto.SessionState{proto.StateHello, proto.StateReady},
		func(sess any, data json.RawMessage) {
			HandlePing(sess.(*net.Session), data)
		},
	)
}
