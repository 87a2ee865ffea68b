package world

import "sync/atomic"

// Stats is the stat block read by the timing resolver and attack composer.
// Values are snapshotted per resolution; nothing here is mutated by skills
// except through buff deltas applied on the game loop.
type Stats struct {
	Level       int16
	Str         int16
	Dex         int16
	Intel       int16
	AttackSpeed int16 // drives melee tempo, baseline per timing table
	CastSpeed   int16 // drives spell tempo
	SpellPower  int16
	DmgMod      int16
	CritChance  int16 // percent
}

// Stat resolves a stat by the name used in timing category definitions.
func (s Stats) Stat(name string) (int, bool) {
	switch name {
	case "attack_speed":
		return int(s.AttackSpeed), true
	case "cast_speed":
		return int(s.CastSpeed), true
	case "str":
		return int(s.Str), true
	case "dex":
		return int(s.Dex), true
	case "int":
		return int(s.Intel), true
	default:
		return 0, false
	}
}

// Pool is a bounded resource pool (hp, mp, stamina).
type Pool struct {
	Cur int32
	Max int32
}

// ActorInfo holds in-memory data for an actor currently in-world.
// Accessed only from the game loop goroutine — no locks needed.
type ActorInfo struct {
	ActorID   int32
	SessionID uint64
	Name      string
	Dead      bool
	Stats     Stats
	Pools     map[string]*Pool
	Known     []int32 // learned skill IDs
}

// Pool returns the named pool, or nil when the actor lacks it.
func (a *ActorInfo) Pool(id string) *Pool {
	return a.Pools[id]
}

// Knows reports whether the actor has learned the given skill.
func (a *ActorInfo) Knows(skillID int32) bool {
	for _, id := range a.Known {
		if id == skillID {
			return true
		}
	}
	return false
}

// Drain debits a pool, clamped at zero. Returns the amount actually removed.
func (a *ActorInfo) Drain(poolID string, amount int32) int32 {
	p := a.Pools[poolID]
	if p == nil || amount <= 0 {
		return 0
	}
	if amount > p.Cur {
		amount = p.Cur
	}
	p.Cur -= amount
	return amount
}

// Restore credits a pool, clamped at Max. Returns the amount actually added.
func (a *ActorInfo) Restore(poolID string, amount int32) int32 {
	p := a.Pools[poolID]
	if p == nil || amount <= 0 {
		return 0
	}
	if p.Cur+amount > p.Max {
		amount = p.Max - p.Cur
	}
	p.Cur += amount
	return amount
}

var nextActorID atomic.Int32

// NextActorID allocates a world-unique actor id.
func NextActorID() int32 {
	return nextActorID.Add(1)
}

// State owns every live actor. Mutated only from the game loop goroutine or
// synchronous request handlers — never from detached tasks.
type State struct {
	actors    map[int32]*ActorInfo
	bySession map[uint64]int32
}

func NewState() *State {
	return &State{
		actors:    make(map[int32]*ActorInfo, 256),
		bySession: make(map[uint64]int32, 256),
	}
}

func (s *State) Add(a *ActorInfo) {
	s.actors[a.ActorID] = a
	if a.SessionID != 0 {
		s.bySession[a.SessionID] = a.ActorID
	}
}

func (s *State) Remove(actorID int32) {
	if a, ok := s.actors[actorID]; ok {
		delete(s.bySession, a.SessionID)
		delete(s.actors, actorID)
	}
}

func (s *State) Get(actorID int32) *ActorInfo {
	return s.actors[actorID]
}

func (s *State) GetBySession(sessionID uint64) *ActorInfo {
	if id, ok := s.bySession[sessionID]; ok {
		return s.actors[id]
	}
	return nil
}

func (s *State) Count() int {
	return len(s.actors)
}

// AllActors iterates every actor. Safe to Remove during iteration.
func (s *State) AllActors(fn func(*ActorInfo)) {
	for _, a := range s.actors {
		fn(a)
	}
}
