package models

import "time"

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobStateCreating         JobState = "CREATING" // Transient, never observable after creation
	JobStateSubmitted        JobState = "SUBMITTED"
	JobStateChangesRequested JobState = "CHANGES_REQUESTED"
	JobStateAccepted         JobState = "ACCEPTED"
	JobStateWaitingForSOW    JobState = "WAITING_FOR_SOW"
	JobStateQueued           JobState = "QUEUED"
	JobStateInProgress       JobState = "IN_PROGRESS"
	JobStateComplete         JobState = "COMPLETE"
	JobStateRejected         JobState = "REJECTED"
)

// JobStates lists every job state in lifecycle order.
var JobStates = []JobState{
	JobStateCreating,
	JobStateSubmitted,
	JobStateChangesRequested,
	JobStateAccepted,
	JobStateWaitingForSOW,
	JobStateQueued,
	JobStateInProgress,
	JobStateComplete,
	JobStateRejected,
}

// Valid reports whether s is a known job state.
func (s JobState) Valid() bool {
	for _, state := range JobStates {
		if s == state {
			return true
		}
	}

	return false
}

// Terminal reports whether no further lifecycle progress is expected.
func (s JobState) Terminal() bool {
	return s == JobStateComplete || s == JobStateRejected
}

// Identity is the identity triple of an authenticated principal.
type Identity struct {
	Username string `json:"username"`
	Sub      string `json:"sub"`
	Email    string `json:"email"`
}

// Empty reports whether no identifying field is set.
func (i Identity) Empty() bool {
	return i.Username == "" && i.Sub == "" && i.Email == ""
}

// Matches reports whether i and owner share a non-empty email or subject.
func (i Identity) Matches(owner Identity) bool {
	if i.Email != "" && i.Email == owner.Email {
		return true
	}

	return i.Sub != "" && i.Sub == owner.Sub
}

// Job wraps one or more workflows submitted together.
type Job struct {
	ID          StorageID   `json:"id"`
	Name        string      `json:"name"`
	Notes       string      `json:"notes,omitempty"`
	Institute   string      `json:"institute"`
	SubmittedBy Identity    `json:"submittedBy"`
	WorkflowIDs []StorageID `json:"workflowIds"`
	Submitted   time.Time   `json:"submitted"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	State       JobState    `json:"state"`
}

func (j *Job) DocumentID() StorageID      { return j.ID }
func (j *Job) SetDocumentID(id StorageID) { j.ID = id }

// OwnedBy reports whether the identity matches the job's recorded owner by email or
// subject.
func (j *Job) OwnedBy(identity Identity) bool {
	return identity.Matches(j.SubmittedBy)
}
