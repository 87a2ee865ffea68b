package net

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/skillcast/server/internal/net/proto"
)

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn net.Conn

	state atomic.Int32 // proto.SessionState stored as int32

	InQueue  chan []byte // game loop reads frames from here
	OutQueue chan []byte // writer goroutine reads from here

	IP          string
	AccountName string
	ActorID     int32 // bound after hello, game loop only

	outBuf [][]byte // buffered frames, flushed by OutputSystem (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second message rate limiter (readLoop goroutine only, no lock needed)
	msgPerSec  int   // max messages/sec (0 = unlimited)
	msgCount   int   // messages received this second
	msgResetAt int64 // unix second of last counter reset

	writeTimeout time.Duration

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, inSize, outSize, msgPerSec int, writeTimeout time.Duration, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, inSize),
		OutQueue:     make(chan []byte, outSize),
		IP:           conn.RemoteAddr().String(),
		closeCh:      make(chan struct{}),
		msgPerSec:    msgPerSec,
		writeTimeout: writeTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(proto.StateHello))
	return s
}

func (s *Session) State() proto.SessionState {
	return proto.SessionState(s.state.Load())
}

func (s *Session) SetState(st proto.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers an encoded envelope for sending. Nothing is written to TCP
// until FlushOutput is called by OutputSystem.
// Called only from the game loop goroutine — no lock needed on outBuf.
func (s *Session) Send(frame []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, frame)
}

// SendMessage marshals a payload into an envelope and buffers it.
func (s *Session) SendMessage(msgType string, payload any) {
	frame, err := proto.Marshal(msgType, payload)
	if err != nil {
		s.log.Error("訊息編碼失敗", zap.String("type", msgType), zap.Error(err))
		return
	}
	s.Send(frame)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop
// goroutine. Called by OutputSystem once per tick.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, frame := range s.outBuf {
		select {
		case s.OutQueue <- frame:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(proto.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads frames from the TCP
// connection and pushes them onto InQueue for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		frame, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		// Per-second message rate limiter
		if s.msgPerSec > 0 {
			now := time.Now().Unix()
			if now != s.msgResetAt {
				s.msgCount = 0
				s.msgResetAt = now
			}
			s.msgCount++
			if s.msgCount > s.msgPerSec {
				s.log.Warn("訊息速率超限，斷開連線", zap.Int("mps", s.msgCount))
				return
			}
		}

		// Block until InQueue has space or session closes. Dropping frames
		// here would desync the client mirror; blocking only stalls this
		// client's own readLoop goroutine.
		select {
		case s.InQueue <- frame:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It reads frames from OutQueue and
// writes them to the TCP connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case frame := <-s.OutQueue:
			if !s.writeOneFrame(frame) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOneFrame(frame []byte) bool {
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := WriteFrame(s.conn, frame); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
