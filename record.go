package ledgersaga

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain identifies which business flow a Record belongs to. One table per
// domain is persisted; the domain also selects the progress ordering.
type Domain int

const (
	DomainTransfer Domain = iota
	DomainClaim
	DomainReward
	DomainTicketPurchase
	DomainPayment
	DomainQuest
	DomainQuestStart
	DomainQuestFinish
	DomainQuestClaim
	DomainBid
	DomainPayout
)

// Domains lists the record domains the reaper sweeps, in sweep order.
// PAYOUT is deliberately absent: a stuck payout means an external send was
// attempted, and only an operator may decide its fate.
var Domains = []Domain{
	DomainTransfer,
	DomainClaim,
	DomainReward,
	DomainTicketPurchase,
	DomainPayment,
	DomainQuest,
	DomainQuestStart,
	DomainQuestFinish,
	DomainQuestClaim,
	DomainBid,
}

// String implements the fmt.Stringer interface for Domain.
func (d Domain) String() string {
	switch d {
	case DomainTransfer:
		return "TRANSFER"
	case DomainClaim:
		return "CLAIM"
	case DomainReward:
		return "REWARD"
	case DomainTicketPurchase:
		return "TICKET_PURCHASE"
	case DomainPayment:
		return "PAYMENT"
	case DomainQuest:
		return "QUEST"
	case DomainQuestStart:
		return "QUEST_START"
	case DomainQuestFinish:
		return "QUEST_FINISH"
	case DomainQuestClaim:
		return "QUEST_CLAIM"
	case DomainBid:
		return "BID"
	case DomainPayout:
		return "PAYOUT"
	default:
		return fmt.Sprintf("Unknown Domain: %d", d)
	}
}

// RewardKind enumerates the quantities a saga can grant. Reward buckets are
// a typed mapping from kind to quantity, never a free-form map.
type RewardKind int

const (
	RewardPoints RewardKind = iota
	RewardStamina
	RewardTickets
	RewardKeys
)

// String implements the fmt.Stringer interface for RewardKind.
func (k RewardKind) String() string {
	switch k {
	case RewardPoints:
		return "POINTS"
	case RewardStamina:
		return "STAMINA"
	case RewardTickets:
		return "TICKETS"
	case RewardKeys:
		return "KEYS"
	default:
		return fmt.Sprintf("Unknown RewardKind: %d", k)
	}
}

// MarshalJSON implements the json.Marshaler interface for RewardKind.
func (k RewardKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// MarshalText implements encoding.TextMarshaler so RewardKind works as a
// JSON map key.
func (k RewardKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for RewardKind.
func (k *RewardKind) UnmarshalText(text []byte) error {
	return k.parse(string(text))
}

// UnmarshalJSON implements the json.Unmarshaler interface for RewardKind.
func (k *RewardKind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return k.parse(str)
}

func (k *RewardKind) parse(str string) error {
	switch str {
	case "POINTS":
		*k = RewardPoints
	case "STAMINA":
		*k = RewardStamina
	case "TICKETS":
		*k = RewardTickets
	case "KEYS":
		*k = RewardKeys
	default:
		return fmt.Errorf("invalid RewardKind: %s", str)
	}

	return nil
}

// Meta carries the cross-references a record needs beyond its two account
// legs: the quest or raffle it serves, the payment it settles, the stake it
// claims from.
type Meta struct {
	QuestID       string    `json:"quest_id,omitempty"`
	RaffleID      string    `json:"raffle_id,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	StakeID       string    `json:"stake_id,omitempty"`
	Participant   string    `json:"participant,omitempty"`
	Participants  []string  `json:"participants,omitempty"`
	LastClaimable time.Time `json:"last_claimable,omitempty"`
	HasLocked     bool      `json:"has_locked,omitempty"`
}

// Record is one saga instance. It is created INITIAL by an orchestrator,
// mutated exclusively through the guarded track transitions, and never
// destroyed by the engine.
type Record struct {
	ID          uuid.UUID            `json:"id"`
	Domain      Domain               `json:"domain"`
	Source      AccountRef           `json:"source"`
	Destination *AccountRef          `json:"destination,omitempty"`
	Amount      int64                `json:"amount"`
	Quantity    int64                `json:"quantity,omitempty"`
	Progress    ProgressStatus       `json:"status"`
	Cancel      CancelStatus         `json:"cancel_status,omitempty"`
	Revert      RevertStatus         `json:"revert_status,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
	Rewards     map[RewardKind]int64 `json:"rewards,omitempty"`
	Meta        Meta                 `json:"meta,omitempty"`
}

// Terminal reports whether the record can never move again: either its
// progress track ran to the end or the cancellation completed.
func (r *Record) Terminal() bool {
	return progressTerminal(r) || r.Cancel == Canceled
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Destination != nil {
		dst := *r.Destination
		c.Destination = &dst
	}
	if r.Rewards != nil {
		c.Rewards = make(map[RewardKind]int64, len(r.Rewards))
		for k, v := range r.Rewards {
			c.Rewards[k] = v
		}
	}
	if r.Meta.Participants != nil {
		c.Meta.Participants = append([]string(nil), r.Meta.Participants...)
	}
	return &c
}

// leg is one account mutation owed by a record: the reservation delta
// applied to the account on the forward path and undone on the reverse path.
type leg struct {
	ref   AccountRef
	delta int64
}

// legs derives the account mutations a record performs from its domain.
// Quest execution markers and bid audit records move no value themselves.
func (r *Record) legs() []leg {
	switch r.Domain {
	case DomainQuest, DomainBid:
		return nil
	case DomainPayment, DomainReward, DomainQuestFinish:
		if r.Destination == nil {
			return nil
		}
		return []leg{{ref: *r.Destination, delta: r.Amount}}
	case DomainQuestStart, DomainPayout:
		return []leg{{ref: r.Source, delta: -r.Amount}}
	case DomainTicketPurchase:
		ls := []leg{{ref: r.Source, delta: -r.Amount}}
		if r.Destination != nil {
			ls = append(ls, leg{ref: *r.Destination, delta: r.Quantity})
		}
		return ls
	default:
		ls := []leg{{ref: r.Source, delta: -r.Amount}}
		if r.Destination != nil {
			ls = append(ls, leg{ref: *r.Destination, delta: r.Amount})
		}
		return ls
	}
}
