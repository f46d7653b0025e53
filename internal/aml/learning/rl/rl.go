// Package rl implements the reinforcement-learning component from
// spec §4.10: epsilon-greedy action selection over a Q-table keyed by
// content-hash state/action strings, reward shaping, the Q-learning
// update rule, experience replay, and periodic table pruning.
package rl

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Config holds the tunables from spec §4.10.
type Config struct {
	Epsilon         float64
	EpsilonMin      float64
	EpsilonDecay    float64
	InitialQValue   float64
	Alpha           float64
	Gamma           float64
	SuccessReward   float64
	FailureReward   float64
	EfficiencyMult  float64
	QualityMult     float64
	NoveltyReward   float64
	RiskPenalty     float64
	BufferSize      int
	ReplayFrequency int
	BatchSize       int
	PruneInterval   int
	PruneThreshold  float64
	MaxSize         int
}

// DefaultConfig matches the spec's stated defaults plus reasonable
// values for the reward-shaping multipliers it leaves to the
// implementation.
func DefaultConfig() Config {
	return Config{
		Epsilon:         0.2,
		EpsilonMin:      0.01,
		EpsilonDecay:    0.995,
		InitialQValue:   0.5,
		Alpha:           0.1,
		Gamma:           0.9,
		SuccessReward:   0.5,
		FailureReward:   -0.5,
		EfficiencyMult:  0.2,
		QualityMult:     0.2,
		NoveltyReward:   0.1,
		RiskPenalty:     -0.2,
		BufferSize:      1000,
		ReplayFrequency: 50,
		BatchSize:       16,
		PruneInterval:   500,
		PruneThreshold:  0.05,
		MaxSize:         10000,
	}
}

type qEntry struct {
	value      float64
	visitCount int
}

// Experience is one transition pushed into the replay buffer.
type Experience struct {
	State       string
	Action      string
	Reward      float64
	NextState   string
	NextActions []string
}

// Stats summarizes an agent's learning progress.
type Stats struct {
	AvgPerformance float64
	RecentTrend    float64
	QTableSize     int
	Epsilon        float64
}

// agentState holds one agent's Q-table, epsilon, and replay buffer.
type agentState struct {
	mu         sync.Mutex
	q          map[string]map[string]*qEntry
	epsilon    float64
	rng        *rand.Rand
	replay     []Experience
	replayHead int
	stepCount  int
	rewards    []float64
}

// Manager tracks per-agent Q-learning state, applying the update rule
// under per-agent locks so read-modify-write on Q(s,a) stays atomic.
type Manager struct {
	cfg    Config
	mu     sync.Mutex
	agents map[string]*agentState
}

// NewManager builds a reinforcement-learning manager with the given
// configuration.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, agents: make(map[string]*agentState)}
}

func (m *Manager) agent(name string) *agentState {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[name]
	if !ok {
		a = &agentState{
			q:       make(map[string]map[string]*qEntry),
			epsilon: m.cfg.Epsilon,
			rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		}
		m.agents[name] = a
	}
	return a
}

func (a *agentState) entry(state, action string, initial float64) *qEntry {
	row, ok := a.q[state]
	if !ok {
		row = make(map[string]*qEntry)
		a.q[state] = row
	}
	e, ok := row[action]
	if !ok {
		e = &qEntry{value: initial}
		row[action] = e
	}
	return e
}

// SelectAction implements epsilon-greedy selection: with probability
// epsilon, pick uniformly at random, with no extra weight for novel
// actions; otherwise pick the argmax over Q(state, ·), where unseen
// actions count as InitialQValue.
func (m *Manager) SelectAction(agentName, state string, actions []string) string {
	if len(actions) == 0 {
		return ""
	}
	a := m.agent(agentName)
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rng.Float64() < a.epsilon {
		return actions[a.rng.Intn(len(actions))]
	}

	best := actions[0]
	bestQ := a.qValueOrInitial(state, best, m.cfg.InitialQValue)
	for _, act := range actions[1:] {
		q := a.qValueOrInitial(state, act, m.cfg.InitialQValue)
		if q > bestQ {
			best, bestQ = act, q
		}
	}
	return best
}

func (a *agentState) qValueOrInitial(state, action string, initial float64) float64 {
	row, ok := a.q[state]
	if !ok {
		return initial
	}
	e, ok := row[action]
	if !ok {
		return initial
	}
	return e.value
}

// ShapeReward combines the outcome signal with efficiency, quality,
// novelty, and risk terms into a reward in [-1, 1], per spec §4.10.
func ShapeReward(success bool, timeSavedMs float64, qualityScore float64, isNovel bool, riskLevel float64, cfg Config) float64 {
	r := cfg.FailureReward
	if success {
		r = cfg.SuccessReward
	}
	r += cfg.EfficiencyMult * math.Tanh(timeSavedMs/1000)
	r += cfg.QualityMult * qualityScore
	if isNovel {
		r += cfg.NoveltyReward
	}
	r += cfg.RiskPenalty * riskLevel

	if r < -1 {
		return -1
	}
	if r > 1 {
		return 1
	}
	return r
}

// UpdateQValue applies the Q-learning update rule for one transition,
// decays epsilon, pushes the transition into the replay buffer, and
// triggers a replay batch and/or a prune sweep when their intervals
// come due. Returns the updated Q(s,a).
func (m *Manager) UpdateQValue(agentName, state, action string, reward float64, nextState string, nextActions []string) float64 {
	a := m.agent(agentName)
	a.mu.Lock()
	defer a.mu.Unlock()

	newQ := a.applyUpdate(state, action, reward, nextState, nextActions, m.cfg)

	a.epsilon = math.Max(m.cfg.EpsilonMin, a.epsilon*m.cfg.EpsilonDecay)
	a.rewards = append(a.rewards, reward)

	a.pushExperience(Experience{State: state, Action: action, Reward: reward, NextState: nextState, NextActions: nextActions}, m.cfg.BufferSize)
	a.stepCount++

	if m.cfg.ReplayFrequency > 0 && a.stepCount%m.cfg.ReplayFrequency == 0 {
		a.replayBatch(m.cfg)
	}
	if m.cfg.PruneInterval > 0 && a.stepCount%m.cfg.PruneInterval == 0 {
		a.prune(m.cfg)
	}

	return newQ
}

func (a *agentState) applyUpdate(state, action string, reward float64, nextState string, nextActions []string, cfg Config) float64 {
	maxNext := 0.0
	if len(nextActions) > 0 {
		maxNext = a.qValueOrInitial(nextState, nextActions[0], cfg.InitialQValue)
		for _, na := range nextActions[1:] {
			if q := a.qValueOrInitial(nextState, na, cfg.InitialQValue); q > maxNext {
				maxNext = q
			}
		}
	}

	e := a.entry(state, action, cfg.InitialQValue)
	e.value += cfg.Alpha * (reward + cfg.Gamma*maxNext - e.value)
	e.visitCount++
	return e.value
}

func (a *agentState) pushExperience(exp Experience, bufferSize int) {
	if bufferSize <= 0 {
		return
	}
	if len(a.replay) < bufferSize {
		a.replay = append(a.replay, exp)
		return
	}
	a.replay[a.replayHead] = exp
	a.replayHead = (a.replayHead + 1) % bufferSize
}

// replayBatch re-applies the update rule to a random batch of past
// experiences, breaking temporal correlation per spec §4.10. Must be
// called with a.mu held.
func (a *agentState) replayBatch(cfg Config) {
	if len(a.replay) == 0 {
		return
	}
	n := cfg.BatchSize
	if n > len(a.replay) {
		n = len(a.replay)
	}
	for i := 0; i < n; i++ {
		exp := a.replay[a.rng.Intn(len(a.replay))]
		a.applyUpdate(exp.State, exp.Action, exp.Reward, exp.NextState, exp.NextActions, cfg)
	}
}

// prune discards low-magnitude, single-visit Q-table entries and
// enforces the hard size cap. Must be called with a.mu held.
func (a *agentState) prune(cfg Config) {
	for state, row := range a.q {
		for action, e := range row {
			if math.Abs(e.value) < cfg.PruneThreshold && e.visitCount <= 1 {
				delete(row, action)
			}
		}
		if len(row) == 0 {
			delete(a.q, state)
		}
	}

	size := a.size()
	if cfg.MaxSize <= 0 || size <= cfg.MaxSize {
		return
	}
	type keyed struct {
		state, action string
		abs           float64
	}
	var all []keyed
	for state, row := range a.q {
		for action, e := range row {
			all = append(all, keyed{state, action, math.Abs(e.value)})
		}
	}
	for size > cfg.MaxSize && len(all) > 0 {
		minIdx := 0
		for i, k := range all {
			if k.abs < all[minIdx].abs {
				minIdx = i
			}
		}
		victim := all[minIdx]
		delete(a.q[victim.state], victim.action)
		if len(a.q[victim.state]) == 0 {
			delete(a.q, victim.state)
		}
		all = append(all[:minIdx], all[minIdx+1:]...)
		size--
	}
}

func (a *agentState) size() int {
	n := 0
	for _, row := range a.q {
		n += len(row)
	}
	return n
}

// QValue returns the current Q(s,a) for an agent, defaulting to
// InitialQValue for an unseen pair per spec §4.10.
func (m *Manager) QValue(agentName, state, action string) float64 {
	a := m.agent(agentName)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.qValueOrInitial(state, action, m.cfg.InitialQValue)
}

// AgentStats reports the agent's current learning statistics.
func (m *Manager) AgentStats(agentName string) Stats {
	a := m.agent(agentName)
	a.mu.Lock()
	defer a.mu.Unlock()

	avg := 0.0
	if len(a.rewards) > 0 {
		sum := 0.0
		for _, r := range a.rewards {
			sum += r
		}
		avg = sum / float64(len(a.rewards))
	}

	trend := 0.0
	const window = 20
	if len(a.rewards) >= 2 {
		n := len(a.rewards)
		w := window
		if w > n {
			w = n
		}
		recent := a.rewards[n-w:]
		half := len(recent) / 2
		if half > 0 {
			firstHalf, secondHalf := recent[:half], recent[half:]
			trend = avgOf(secondHalf) - avgOf(firstHalf)
		}
	}

	return Stats{
		AvgPerformance: avg,
		RecentTrend:    trend,
		QTableSize:     a.size(),
		Epsilon:        a.epsilon,
	}
}

func avgOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
