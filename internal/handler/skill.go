package handler

import (
	"encoding/json"

	"github.com/skillcast/server/internal/net"
	"github.com/skillcast/server/internal/net/proto"
	"github.com/skillcast/server/internal/skill"
)

// HandleUseSkill 處理施放請求。結果同步回覆；授權快照另走 session_event。
func HandleUseSkill(sess *net.Session, raw json.RawMessage, deps *Deps) {
	var req skill.UseSkillRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(sess, "bad_request")
		return
	}

	res := deps.Manager.UseSkill(sess.ActorID, req)
	sess.SendMessage(proto.SUseSkillResult, res)
}

// HandleAdvanceCombo 處理連段推進請求。
func HandleAdvanceCombo(sess *net.Session, raw json.RawMessage, deps *Deps) {
	var req skill.AdvanceComboRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(sess, "bad_request")
		return
	}

	res := deps.Manager.AdvanceCombo(sess.ActorID, req)
	sess.SendMessage(proto.SUseSkillResult, res)
}

type cancelRequest struct {
	ClientAttemptID string `json:"clientAttemptId,omitempty"`
}

// HandleCancelSkill 玩家主動中斷目前的技能會話。冪等：沒有會話也回成功。
func HandleCancelSkill(sess *net.Session, raw json.RawMessage, deps *Deps) {
	var req cancelRequest
	json.Unmarshal(raw, &req) // best-effort, payload optional

	deps.Manager.Cancel(sess.ActorID, "interrupted")
	sess.SendMessage(proto.SUseSkillResult, skill.UseSkillResult{
		Accepted:        true,
		ClientAttemptID: req.ClientAttemptID,
	})
}

type pingPayload struct {
	ClientTime int64 `json:"clientTime,omitempty"`
}

func HandlePing(sess *net.Session, raw json.RawMessage) {
	var p pingPayload
	json.Unmarshal(raw, &p)
	sess.SendMessage(proto.SPong, p)
}
