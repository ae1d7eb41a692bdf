package discussion

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/meeting"
)

// Coordinator runs the sequential-discussion algorithm for one meeting at a
// time; callers create one per active discussion (internal/httpapi keeps a
// registry keyed by meeting_id).
type Coordinator struct {
	meetings *meeting.Service
	replies  ReplySource
	events   Publisher
	clock    clock.Clock
	timeout  time.Duration
	theta    float64
	log      *slog.Logger

	mu    sync.Mutex
	state *State
}

// NewCoordinator builds a Coordinator for one meeting. timeout bounds every
// individual opinion/vote wait (T in spec terms); theta is the consensus
// threshold (fraction of valid votes that must agree).
func NewCoordinator(meetings *meeting.Service, replies ReplySource, events Publisher, c clock.Clock, timeout time.Duration, theta float64) *Coordinator {
	return &Coordinator{
		meetings: meetings,
		replies:  replies,
		events:   events,
		clock:    c,
		timeout:  timeout,
		theta:    theta,
		log:      slog.With("component", "discussion.Coordinator"),
	}
}

// State returns a copy of the coordinator's current in-memory view.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return State{}
	}
	return *c.state
}

// Run drives the full discussion to completion: opinion collection and
// consensus voting, repeated up to meeting.MaxDiscussionRounds, stopping as
// soon as one round reaches consensus.
func (c *Coordinator) Run(ctx context.Context, meetingID, question string, options []string) error {
	m, err := c.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	participants, err := c.meetings.ListParticipants(ctx, meetingID)
	if err != nil {
		return err
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].SpeakingOrder < participants[j].SpeakingOrder })

	order := make([]string, len(participants))
	for i, p := range participants {
		order[i] = p.AgentID
	}

	c.mu.Lock()
	c.state = &State{MeetingID: meetingID, Phase: PhaseSetup, SpeakingOrder: order}
	c.mu.Unlock()

	if m.Status == meeting.StatusPending {
		if _, err := c.meetings.Activate(ctx, meetingID); err != nil {
			return err
		}
	}

	for round := 1; round <= m.MaxDiscussionRounds; round++ {
		if _, err := c.meetings.IncrementRound(ctx, meetingID); err != nil {
			return err
		}

		rs, err := c.runRound(ctx, meetingID, round, question, options, order)
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.state.Rounds = append(c.state.Rounds, rs)
		c.mu.Unlock()

		if rs.ConsensusReached {
			return c.recordDecision(ctx, meetingID, question, options, rs)
		}
	}

	c.mu.Lock()
	c.state.Phase = PhaseNoConsensus
	c.mu.Unlock()

	if _, err := c.meetings.Complete(ctx, meetingID); err != nil {
		return err
	}
	c.publish(meetingID, "", EventMeetingCompleted, nil)
	return nil
}

func (c *Coordinator) runRound(ctx context.Context, meetingID string, round int, question string, options []string, order []string) (RoundState, error) {
	rs := RoundState{RoundNumber: round, StartedAt: c.clock.Now(), Opinions: make(map[string]string), Votes: make(map[string]string)}
	c.publish(meetingID, "", EventRoundStarted, map[string]any{"round": round, "question": question})

	opinions, err := c.collectOpinions(ctx, meetingID, question, order)
	if err != nil {
		return RoundState{}, err
	}
	rs.Opinions = opinions

	votes, err := c.facilitateConsensus(ctx, meetingID, question, options, order)
	if err != nil {
		return RoundState{}, err
	}
	rs.Votes = votes

	selected, reached := checkConsensus(votes, c.theta)
	rs.ConsensusReached = reached
	rs.SelectedOption = selected
	now := c.clock.Now()
	rs.CompletedAt = &now

	if reached {
		c.publish(meetingID, "", EventConsensusReached, map[string]any{"round": round, "selected_option": selected})
	}
	c.publish(meetingID, "", EventRoundCompleted, map[string]any{"round": round, "consensus_reached": reached, "selected_option": selected})
	return rs, nil
}

// collectOpinions iterates participants strictly in speaking_order — one
// in-flight AwaitReply at a time, per spec's concurrency model.
func (c *Coordinator) collectOpinions(ctx context.Context, meetingID, question string, order []string) (map[string]string, error) {
	c.mu.Lock()
	c.state.Phase = PhaseOpinionCollection
	c.state.Opinions = make(map[string]string)
	c.mu.Unlock()

	opinions := make(map[string]string, len(order))
	for _, agentID := range order {
		c.mu.Lock()
		c.state.CurrentSpeaker = agentID
		c.mu.Unlock()

		c.publish(meetingID, agentID, EventOpinionRequest, map[string]any{"question": question, "current_speaker": agentID})

		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		reply, err := c.replies.AwaitReply(waitCtx, meetingID, agentID)
		cancel()

		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				return nil, apperr.Wrap(apperr.Internal, "discussion cancelled during opinion collection", ctx.Err())
			}
			reply = NoResponse
		}
		opinions[agentID] = reply

		msg, mErr := c.meetings.RecordMessage(ctx, meetingID, agentID, reply, meeting.MessageOpinion)
		if mErr != nil {
			return nil, mErr
		}
		c.mu.Lock()
		c.state.Opinions[agentID] = reply
		c.mu.Unlock()

		seq := msg.SequenceNumber
		c.publish(meetingID, agentID, EventOpinionPresented, map[string]any{"opinion": reply, "sequence_number": seq})
	}
	return opinions, nil
}

// facilitateConsensus gathers votes concurrently, bounded per-participant
// by context.WithTimeout — grounded on runner.go's goroutine-per-task +
// channel-collection pattern, scaled down since a meeting has at most a
// handful of participants (no reservation/backpressure needed).
func (c *Coordinator) facilitateConsensus(ctx context.Context, meetingID, question string, options []string, order []string) (map[string]string, error) {
	c.mu.Lock()
	c.state.Phase = PhaseConsensusBuilding
	c.state.CurrentSpeaker = ""
	c.state.Votes = make(map[string]string)
	c.mu.Unlock()

	c.publish(meetingID, "", EventConsensusVoteRequest, map[string]any{"proposal": question, "options": options})

	type voteResult struct {
		agentID string
		reply   string
	}
	resultsCh := make(chan voteResult, len(order))
	var wg sync.WaitGroup

	for _, agentID := range order {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			reply, err := c.replies.AwaitReply(waitCtx, meetingID, agentID)
			if err != nil {
				reply = NoVote
			}
			resultsCh <- voteResult{agentID: agentID, reply: reply}
		}(agentID)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	votes := make(map[string]string, len(order))
	for r := range resultsCh {
		votes[r.agentID] = r.reply
		msgType := meeting.MessageVote
		if r.reply == Abstain {
			msgType = meeting.MessageConsensus
		}
		if _, err := c.meetings.RecordMessage(ctx, meetingID, r.agentID, r.reply, msgType); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.state.Votes[r.agentID] = r.reply
		c.mu.Unlock()
	}

	return votes, nil
}

// checkConsensus computes the mode of valid votes (excluding [NO VOTE] and
// [ABSTAIN]) and reports consensus when its share of valid votes meets
// theta. |V|=0 is never consensus.
func checkConsensus(votes map[string]string, theta float64) (string, bool) {
	counts := make(map[string]int)
	valid := 0
	for _, v := range votes {
		if v == NoVote || v == Abstain {
			continue
		}
		counts[v]++
		valid++
	}
	if valid == 0 {
		return "", false
	}
	var best string
	bestCount := 0
	for option, n := range counts {
		if n > bestCount {
			best, bestCount = option, n
		}
	}
	if float64(bestCount)/float64(valid) >= theta {
		return best, true
	}
	return "", false
}

func (c *Coordinator) recordDecision(ctx context.Context, meetingID, question string, options []string, rs RoundState) error {
	c.mu.Lock()
	c.state.Phase = PhaseDecision
	c.mu.Unlock()

	agreement := make(map[string]string, len(rs.Votes))
	for agentID, vote := range rs.Votes {
		agreement[agentID] = vote
	}

	d, err := c.meetings.RecordDecision(ctx, meeting.Decision{
		MeetingID:            meetingID,
		Title:                question,
		Options:              options,
		SelectedOption:       rs.SelectedOption,
		ParticipantAgreement: agreement,
		Status:               meeting.DecisionApproved,
	})
	if err != nil {
		return err
	}
	c.publish(meetingID, "", EventDecisionRecorded, map[string]any{"decision_id": d.ID, "selected_option": d.SelectedOption})

	c.mu.Lock()
	c.state.Phase = PhaseCompleted
	c.mu.Unlock()

	if _, err := c.meetings.Complete(ctx, meetingID); err != nil {
		return err
	}
	c.publish(meetingID, "", EventMeetingCompleted, map[string]any{"decision_id": d.ID})
	return nil
}

// Pause/Resume only publish discussion_paused/discussion_resumed events; they
// change neither the in-memory phase nor the durable meeting row, which stays
// `active` throughout.
func (c *Coordinator) Pause(meetingID string) {
	c.publish(meetingID, "", EventDiscussionPaused, nil)
}

func (c *Coordinator) Resume(meetingID string) {
	c.publish(meetingID, "", EventDiscussionResumed, nil)
}

// SyncState publishes a state_sync event carrying everything a late joiner
// needs to catch up.
func (c *Coordinator) SyncState(meetingID string) {
	st := c.State()
	c.publish(meetingID, "", EventStateSync, map[string]any{
		"phase":          st.Phase,
		"current_round":  len(st.Rounds),
		"opinions":       st.Opinions,
		"votes":          st.Votes,
		"speaking_order": st.SpeakingOrder,
	})
}

func (c *Coordinator) publish(meetingID, agentID, eventType string, data map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Publish(meetingID, Event{
		Type:      eventType,
		MeetingID: meetingID,
		Timestamp: c.clock.Now(),
		AgentID:   agentID,
		Data:      data,
	})
}
