package orchestration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/groupkit-ai/groupkit/types"
)

// VotingSource identifies messages injected by the Voting strategy, such as
// vote requests and tally announcements.
const VotingSource = "voting"

type votingPhase int

const (
	votingProposals votingPhase = iota
	votingBallots
	votingWinner
	votingDone
)

// Voting is a consensus strategy. All participants propose in parallel,
// then vote on each other's proposals in parallel; the majority winner
// announces the final answer. Ties break in favor of the first proposer in
// participant order.
type Voting struct {
	mu        sync.Mutex
	order     []string
	phase     votingPhase
	proposals map[string]string
	ballots   map[string]string
	pending   []types.Message
}

// NewVoting creates a voting strategy over the given participant order.
func NewVoting(order []string) (*Voting, error) {
	if len(order) < 2 {
		return nil, fmt.Errorf("voting requires at least two participants")
	}
	return &Voting{
		order:     append([]string(nil), order...),
		proposals: make(map[string]string),
		ballots:   make(map[string]string),
	}, nil
}

// SelectNext drives the proposal, ballot and announcement phases. During
// fan-out phases it returns no speaker until every participant has
// responded, which keeps the manager waiting on the outstanding replies.
func (v *Voting) SelectNext(ctx context.Context, thread types.Thread) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	last, ok := thread.Last()
	if ok {
		v.record(last)
	}

	switch v.phase {
	case votingProposals:
		if !ok || !v.isParticipant(last.Source) {
			// Task seeded: open the proposal round.
			return append([]string(nil), v.order...), nil
		}
		if len(v.proposals) < len(v.order) {
			return nil, nil
		}
		v.phase = votingBallots
		v.pending = append(v.pending,
			types.NewTextMessage(VotingSource,
				"all proposals received; vote for the best proposal by author name"))
		return append([]string(nil), v.order...), nil
	case votingBallots:
		if len(v.ballots) < len(v.order) {
			return nil, nil
		}
		winner, tally := v.tally()
		v.phase = votingWinner
		v.pending = append(v.pending,
			types.NewVotingResultMessage(VotingSource, winner, tally))
		return []string{winner}, nil
	case votingWinner:
		v.phase = votingDone
		return nil, nil
	default:
		return nil, nil
	}
}

// DrainMessages returns queued vote requests and tally announcements.
func (v *Voting) DrainMessages() []types.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.pending
	v.pending = nil
	return out
}

// Reset discards proposals and ballots so the next run starts a fresh
// voting round.
func (v *Voting) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.phase = votingProposals
	v.proposals = make(map[string]string)
	v.ballots = make(map[string]string)
	v.pending = nil
}

func (v *Voting) record(m types.Message) {
	if !v.isParticipant(m.Source) {
		return
	}
	switch {
	case v.phase == votingProposals && m.Kind != types.KindVote:
		// Any substantive reply counts as that participant's proposal.
		v.proposals[m.Source] = m.Render()
	case v.phase == votingBallots && m.Kind == types.KindVote:
		v.ballots[m.Source] = m.Target
	case v.phase == votingBallots:
		// A non-vote reply during the ballot phase is read as a vote for
		// its rendered content when that names a participant, otherwise
		// as an abstention for the voter's own proposal.
		if choice := m.Render(); v.isParticipant(choice) {
			v.ballots[m.Source] = choice
		} else {
			v.ballots[m.Source] = m.Source
		}
	}
}

func (v *Voting) isParticipant(name string) bool {
	for _, n := range v.order {
		if n == name {
			return true
		}
	}
	return false
}

// tally counts ballots for known participants and returns the winner with
// the full count map. Ballots naming unknown proposals are dropped.
func (v *Voting) tally() (string, map[string]int) {
	counts := make(map[string]int, len(v.order))
	for _, choice := range v.ballots {
		if v.isParticipant(choice) {
			counts[choice]++
		}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return v.rank(names[i]) < v.rank(names[j])
	})
	if len(names) == 0 {
		return v.order[0], counts
	}
	return names[0], counts
}

func (v *Voting) rank(name string) int {
	for i, n := range v.order {
		if n == name {
			return i
		}
	}
	return len(v.order)
}
