package services

import "time"

type OutcomeKind string

const (
	OutcomeJoined        OutcomeKind = "joined"
	OutcomeAlreadyMember OutcomeKind = "already_member"
	OutcomeWaiting       OutcomeKind = "waiting"
	OutcomeDismissed     OutcomeKind = "dismissed"
	OutcomeRejected      OutcomeKind = "rejected"
)

type RejectReason string

const (
	RejectNotFound    RejectReason = "not_found"
	RejectExpired     RejectReason = "expired"
	RejectClosed      RejectReason = "closed"
	RejectRateLimited RejectReason = "rate_limited"
	RejectFull        RejectReason = "full"
)

// Outcome is the result of redeeming a join code or answering an invitation.
type Outcome struct {
	Kind        OutcomeKind  `json:"kind"`
	ProjectID   string       `json:"project_id,omitempty"`
	TeamID      string       `json:"team_id,omitempty"`
	StartDate   *time.Time   `json:"start_date,omitempty"`
	Reason      RejectReason `json:"reason,omitempty"`
	CooldownEnd *time.Time   `json:"cooldown_end,omitempty"`
}

func joined(projectID, teamID string) *Outcome {
	return &Outcome{Kind: OutcomeJoined, ProjectID: projectID, TeamID: teamID}
}

func alreadyMember(projectID, teamID string) *Outcome {
	return &Outcome{Kind: OutcomeAlreadyMember, ProjectID: projectID, TeamID: teamID}
}

func waiting(projectID string, startDate *time.Time) *Outcome {
	return &Outcome{Kind: OutcomeWaiting, ProjectID: projectID, StartDate: startDate}
}

func rejected(projectID string, reason RejectReason) *Outcome {
	return &Outcome{Kind: OutcomeRejected, ProjectID: projectID, Reason: reason}
}

// Err returns the error matching a rejected outcome, or nil.
func (o *Outcome) Err() error {
	if o == nil || o.Kind != OutcomeRejected {
		return nil
	}
	switch o.Reason {
	case RejectNotFound:
		return ErrProjectNotFound
	case RejectExpired:
		return ErrJoinCodeExpired
	case RejectClosed:
		return ErrProjectClosed
	case RejectFull:
		return ErrProjectFull
	case RejectRateLimited:
		var end time.Time
		if o.CooldownEnd != nil {
			end = *o.CooldownEnd
		}
		return &RateLimitedError{CooldownEnd: end}
	}
	return nil
}
