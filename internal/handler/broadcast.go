package handler

import (
	"go.uber.org/zap"

	"github.com/skillcast/server/internal/net"
	"github.com/skillcast/server/internal/net/proto"
	"github.com/skillcast/server/internal/skill"
)

// Broadcaster fans authoritative session snapshots out to every ready
// connection. Subscribed to the event bus; runs on the game loop.
type Broadcaster struct {
	store *net.SessionStore
	log   *zap.Logger
}

func NewBroadcaster(store *net.SessionStore, log *zap.Logger) *Broadcaster {
	return &Broadcaster{store: store, log: log}
}

// OnSessionEvent encodes the snapshot once and buffers it on every ready
// session. 全快照廣播：掉包的客戶端在下一個事件即自癒。
func (b *Broadcaster) OnSessionEvent(ev skill.Event) {
	frame, err := proto.Marshal(proto.SSessionEvent, ev)
	if err != nil {
		b.log.Error("快照編碼失敗", zap.Error(err))
		return
	}
	b.store.ForEach(func(sess *net.Session) {
		if sess.State() == proto.StateReady {
			sess.Send(frame)
		}
	})
}
