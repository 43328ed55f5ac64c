package ledgersaga

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// QuestRun reports which participants actually entered a quest.
type QuestRun struct {
	Execution *Record
	Accepted  []string
	Rejected  []string
}

// StartQuest opens a quest execution and burns stamina for every
// participant who can afford the cost. One QUEST_START record is driven per
// participant, so a participant without stamina is rejected and compensated
// individually while the rest proceed; the run fails only when nobody could
// start. The execution record advances to STARTED.
func (e *Engine) StartQuest(ctx context.Context, questID string, participants []string, staminaCost int64) (*QuestRun, error) {
	if questID == "" || len(participants) == 0 || staminaCost < 0 {
		return nil, fmt.Errorf("quest start: %w", ErrInvalidRequest)
	}

	exec := &Record{
		Domain: DomainQuest,
		Source: AccountRef{Kind: AccountRewards, Owner: questID},
		Meta:   Meta{QuestID: questID, Participants: participants},
	}
	if err := e.insert(ctx, exec); err != nil {
		return nil, err
	}

	run := &QuestRun{Execution: exec}
	for _, p := range participants {
		rec := &Record{
			Domain: DomainQuestStart,
			Source: StaminaRef(p),
			Amount: staminaCost,
			Meta:   Meta{QuestID: questID, Participant: p},
		}
		if err := e.insert(ctx, rec); err != nil {
			return nil, err
		}
		if err := e.drive(ctx, rec); err != nil {
			// Already compensated by drive; this participant sits out.
			e.log.Debug().Err(err).
				Str("quest", questID).
				Str("participant", p).
				Msg("participant rejected at quest start")
			run.Rejected = append(run.Rejected, p)
			continue
		}
		run.Accepted = append(run.Accepted, p)
	}

	if len(run.Accepted) == 0 {
		if _, err := e.Revert(ctx, exec.ID, true); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("quest %s: no participant could start: %w", questID, ErrGuardFailure)
	}

	if err := e.advanceExecution(ctx, exec, StatusStarted); err != nil {
		return nil, err
	}
	return run, nil
}

// advanceExecution moves a quest execution to its next milestone. A peer
// that already drove the execution there counts as success; a frozen
// execution does not.
func (e *Engine) advanceExecution(ctx context.Context, exec *Record, target ProgressStatus) error {
	ok, err := e.AdvanceProgress(ctx, exec, target)
	if err != nil || ok {
		return err
	}
	cur, err := e.store.GetRecord(ctx, exec.ID)
	if err != nil {
		return err
	}
	if cur.Cancel == CancelNone && !notReached(progressTable(cur.Domain), cur.Progress, target) {
		exec.Progress = cur.Progress
		return nil
	}
	return fmt.Errorf("quest %s: execution frozen at %s: %w", exec.Meta.QuestID, cur.Progress, ErrGuardFailure)
}

// FinishQuest accrues rewards for the quest's participants. One
// QUEST_FINISH record per participant credits their reward bucket; the
// execution record's typed reward totals track what was granted, and the
// execution advances to COMPLETE. Partial failure is tolerated, the reaper
// reconciles stragglers.
func (e *Engine) FinishQuest(ctx context.Context, execID uuid.UUID, rewards map[string]int64) (*Record, error) {
	exec, err := e.store.GetRecord(ctx, execID)
	if err != nil {
		return nil, err
	}
	if exec.Domain != DomainQuest {
		return nil, fmt.Errorf("quest finish: record %s is %s: %w", execID, exec.Domain, ErrInvalidRequest)
	}
	if exec.Cancel != CancelNone {
		return nil, fmt.Errorf("quest finish: execution %s is frozen: %w", execID, ErrGuardFailure)
	}

	for p, amt := range rewards {
		if amt <= 0 {
			continue
		}
		bucket := RewardsRef(exec.Meta.QuestID, p)
		rec := &Record{
			Domain:      DomainQuestFinish,
			Source:      bucket,
			Destination: &bucket,
			Amount:      amt,
			Meta:        Meta{QuestID: exec.Meta.QuestID, Participant: p},
		}
		if err := e.insert(ctx, rec); err != nil {
			return nil, err
		}
		if err := e.drive(ctx, rec); err != nil {
			e.log.Warn().Err(err).
				Str("quest", exec.Meta.QuestID).
				Str("participant", p).
				Msg("reward accrual failed for participant")
			continue
		}
		if err := e.store.AccrueReward(ctx, execID, RewardPoints, amt); err != nil {
			return nil, err
		}
	}

	if err := e.advanceExecution(ctx, exec, StatusComplete); err != nil {
		return nil, err
	}
	return exec, nil
}

// ClaimQuestRewards pays every participant's reward bucket into their
// wallet balance, one QUEST_CLAIM record per participant, and advances the
// execution to CLAIMED. A participant whose claim fails keeps their bucket;
// callers tolerate the partial success.
func (e *Engine) ClaimQuestRewards(ctx context.Context, execID uuid.UUID) (map[string]int64, error) {
	exec, err := e.store.GetRecord(ctx, execID)
	if err != nil {
		return nil, err
	}
	if exec.Domain != DomainQuest {
		return nil, fmt.Errorf("quest claim: record %s is %s: %w", execID, exec.Domain, ErrInvalidRequest)
	}
	if exec.Cancel != CancelNone {
		return nil, fmt.Errorf("quest claim: execution %s is frozen: %w", execID, ErrGuardFailure)
	}

	claimed := make(map[string]int64)
	for _, p := range exec.Meta.Participants {
		bucket := RewardsRef(exec.Meta.QuestID, p)
		acct, err := e.store.GetAccount(ctx, bucket)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if acct.Committed <= 0 {
			continue
		}

		dst := BalanceRef(p)
		rec := &Record{
			Domain:      DomainQuestClaim,
			Source:      bucket,
			Destination: &dst,
			Amount:      acct.Committed,
			Meta:        Meta{QuestID: exec.Meta.QuestID, Participant: p},
		}
		if err := e.insert(ctx, rec); err != nil {
			return nil, err
		}
		if err := e.drive(ctx, rec); err != nil {
			e.log.Warn().Err(err).
				Str("quest", exec.Meta.QuestID).
				Str("participant", p).
				Msg("reward claim failed for participant")
			continue
		}
		claimed[p] = rec.Amount
	}

	if err := e.advanceExecution(ctx, exec, StatusClaimed); err != nil {
		return nil, err
	}
	return claimed, nil
}
