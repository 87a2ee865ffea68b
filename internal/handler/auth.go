package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/skillcast/server/internal/net"
	"github.com/skillcast/server/internal/net/proto"
	"github.com/skillcast/server/internal/world"
)

type helloRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

type welcomePayload struct {
	ActorID     int32   `json:"actorId"`
	ServerName  string  `json:"serverName"`
	ServerTime  int64   `json:"serverTime"`
	TickMs      int64   `json:"tickMs"`
	KnownSkills []int32 `json:"knownSkills"`
}

type errorPayload struct {
	Code string `json:"code"`
}

func sendError(sess *net.Session, code string) {
	sess.SendMessage(proto.SError, errorPayload{Code: code})
}

// HandleHello authenticates the connection and spawns the actor. Account
// names are NFKC-normalized and lowercased so visually identical names map
// to one account.
func HandleHello(sess *net.Session, raw json.RawMessage, deps *Deps) {
	var req helloRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(sess, "bad_hello")
		sess.Close()
		return
	}

	name := strings.ToLower(strings.TrimSpace(norm.NFKC.String(req.Account)))
	if name == "" || len(name) > 32 {
		sendError(sess, "bad_account")
		sess.Close()
		return
	}

	if deps.AccountRepo != nil {
		if !authenticate(sess, name, req.Password, deps) {
			return
		}
	}

	actor := spawnActor(sess, name, deps)
	sess.AccountName = name
	sess.ActorID = actor.ActorID
	sess.SetState(proto.StateReady)

	sess.SendMessage(proto.SWelcome, welcomePayload{
		ActorID:     actor.ActorID,
		ServerName:  deps.Config.Server.Name,
		ServerTime:  time.Now().UnixMilli(),
		TickMs:      deps.Config.Network.TickRate.Milliseconds(),
		KnownSkills: actor.Known,
	})

	deps.Log.Info(fmt.Sprintf("登入成功  帳號=%s  actor=%d  ip=%s", name, actor.ActorID, sess.IP))
}

func authenticate(sess *net.Session, name, password string, deps *Deps) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	account, err := deps.AccountRepo.Load(ctx, name)
	if err != nil {
		deps.Log.Error("載入帳號資料庫錯誤", zap.Error(err))
		sendError(sess, "auth_failed")
		sess.Close()
		return false
	}

	if account == nil {
		if !deps.Config.Account.AutoCreate {
			sendError(sess, "no_account")
			sess.Close()
			return false
		}
		account, err = deps.AccountRepo.Create(ctx, name, password, sess.IP)
		if err != nil {
			deps.Log.Error("建立帳號資料庫錯誤", zap.Error(err))
			sendError(sess, "auth_failed")
			sess.Close()
			return false
		}
		deps.Log.Info(fmt.Sprintf("自動建立帳號  帳號=%s", name))
	} else if !deps.AccountRepo.ValidatePassword(account.PasswordHash, password) {
		sendError(sess, "wrong_password")
		sess.Close()
		return false
	}

	if account.Banned {
		deps.Log.Info(fmt.Sprintf("被封鎖帳號嘗試登入  帳號=%s", name))
		sendError(sess, "banned")
		sess.Close()
		return false
	}
	if account.Online {
		sendError(sess, "already_online")
		sess.Close()
		return false
	}

	if err := deps.AccountRepo.SetOnline(ctx, name, true); err != nil {
		deps.Log.Error("設定上線狀態資料庫錯誤", zap.Error(err))
	}
	if err := deps.AccountRepo.UpdateLastActive(ctx, name, sess.IP); err != nil {
		deps.Log.Error("更新最後活動時間資料庫錯誤", zap.Error(err))
	}
	return true
}

// spawnActor creates the in-world actor with default stats, full pools, and
// the whole loaded skill book. 開發期所有技能都已學會，正式資料接上後改由
// 帳號資料決定。
func spawnActor(sess *net.Session, name string, deps *Deps) *world.ActorInfo {
	known := deps.Skills.IDs()

	actor := &world.ActorInfo{
		ActorID:   world.NextActorID(),
		SessionID: sess.ID,
		Name:      name,
		Stats: world.Stats{
			Level:       1,
			Str:         12,
			Dex:         12,
			Intel:       12,
			AttackSpeed: 100,
			CastSpeed:   100,
			CritChance:  5,
		},
		Pools: map[string]*world.Pool{
			"hp": {Cur: 100, Max: 100},
			"mp": {Cur: 50, Max: 50},
		},
		Known: known,
	}
	deps.World.Add(actor)
	return actor
}
