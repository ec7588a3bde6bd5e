package domain

// Status is the lifecycle state of a QDF.
type Status string

const (
	StatusDraft                     Status = "Draft"
	StatusSubmittedForReview        Status = "SubmittedForReview"
	StatusPendingQDCNomination      Status = "PendingQDCNomination"
	StatusOnHold                    Status = "OnHold"
	StatusInDevelopment             Status = "InDevelopment"
	StatusCSSubmittedForValidation  Status = "CSSubmittedForValidation"
	StatusCSValidated               Status = "CSValidated"
	StatusPendingIndustryValidation Status = "PendingIndustryValidation"
	StatusPendingFinalApproval      Status = "PendingFinalApproval"
	StatusApproved                  Status = "Approved"
	StatusRejected                  Status = "Rejected"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusSubmittedForReview,
	StatusPendingQDCNomination,
	StatusOnHold,
	StatusInDevelopment,
	StatusCSSubmittedForValidation,
	StatusCSValidated,
	StatusPendingIndustryValidation,
	StatusPendingFinalApproval,
	StatusApproved,
	StatusRejected,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Label is the human-facing status text.
func (s Status) Label() string {
	switch s {
	case StatusSubmittedForReview:
		return "Submitted for Review"
	case StatusPendingQDCNomination:
		return "Pending QDC Nomination"
	case StatusOnHold:
		return "On Hold"
	case StatusInDevelopment:
		return "In Development"
	case StatusCSSubmittedForValidation:
		return "CS Submitted for Validation"
	case StatusCSValidated:
		return "CS Validated"
	case StatusPendingIndustryValidation:
		return "Pending Industry Validation"
	case StatusPendingFinalApproval:
		return "Pending Final Approval"
	default:
		return string(s)
	}
}

// Action names a workflow transition.
type Action string

const (
	ActionSubmit            Action = "submit"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionLaunchDevelopment Action = "launchDevelopment"
	ActionHold              Action = "hold"
	ActionFinalApprove      Action = "finalApprove"

	// Development-phase actions.
	ActionSubmitForValidation       Action = "submitForValidation"
	ActionValidateCS                Action = "validateCS"
	ActionRequestIndustryValidation Action = "requestIndustryValidation"
	ActionEndorse                   Action = "endorse"
)

var Actions = []Action{
	ActionSubmit,
	ActionApprove,
	ActionReject,
	ActionLaunchDevelopment,
	ActionHold,
	ActionFinalApprove,
	ActionSubmitForValidation,
	ActionValidateCS,
	ActionRequestIndustryValidation,
	ActionEndorse,
}

func (a Action) Valid() bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

// Role is the actor's function in the authority's process.
type Role string

const (
	RoleAdmin            Role = "Admin"
	RoleProposingOrg     Role = "ProposingOrg"
	RoleCommitteeMember  Role = "CommitteeMember"
	RoleIndustryExpert   Role = "IndustryExpert"
	RoleTrainingProvider Role = "TrainingProvider"
	RoleSystemAdmin      Role = "SystemAdmin"
)

var Roles = []Role{
	RoleAdmin,
	RoleProposingOrg,
	RoleCommitteeMember,
	RoleIndustryExpert,
	RoleTrainingProvider,
	RoleSystemAdmin,
}

func (r Role) Valid() bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// Section is an editable part of the QDF form.
type Section string

const (
	SectionIntent     Section = "intent"
	SectionReview     Section = "review"
	SectionNomination Section = "nomination"
	SectionChecklist  Section = "checklist"
	SectionWorkspace  Section = "workspace"
)

// StageStatus is the state of a single process-flow stage.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
)

// Stage names of the workflow history template.
const (
	StageSubmitted          = "QDF-1 Submitted"
	StageReview             = "NAVTTC Review"
	StageNomination         = "QDC Nomination"
	StageDevelopment        = "QDC Development"
	StageCSValidation       = "CS Validation"
	StageIndustryValidation = "Industry Validation"
	StageFinalApproval      = "Final Approval"
	StagePublished          = "Published to Registry"
)

// StageTemplate is the fixed, ordered stage list every submitted QDF carries.
var StageTemplate = []string{
	StageSubmitted,
	StageReview,
	StageNomination,
	StageDevelopment,
	StageCSValidation,
	StageIndustryValidation,
	StageFinalApproval,
	StagePublished,
}

// Decision is the QDF-2 review outcome.
type Decision string

const (
	DecisionApproved    Decision = "Approved"
	DecisionIncomplete  Decision = "Incomplete / Needs Revision"
	DecisionNotApproved Decision = "Not Approved"
)

// ChecklistResponse is the tri-state answer to a QA checklist item.
type ChecklistResponse string

const (
	ChecklistYes ChecklistResponse = "Yes"
	ChecklistNo  ChecklistResponse = "No"
	ChecklistNA  ChecklistResponse = "NA"
)

type WorkflowEvent struct {
	Stage     string      `json:"stage"`
	User      string      `json:"user"`
	Timestamp string      `json:"timestamp"`
	Status    StageStatus `json:"status" enum:"pending,in_progress,completed"`
	Comments  string      `json:"comments,omitempty"`
}

type QDCMember struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Designation  string `json:"designation,omitempty"`
	Organization string `json:"organization,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

type QAChecklistData struct {
	Items                 map[int]ChecklistResponse `json:"items,omitempty"`
	Comments              string                    `json:"comments,omitempty"`
	AssessedBy            string                    `json:"assessed_by,omitempty"`
	AssessedByDesignation string                    `json:"assessed_by_designation,omitempty"`
	AssessedBySignature   string                    `json:"assessed_by_signature,omitempty"`
	AssessmentDate        string                    `json:"assessment_date,omitempty"`
}

// Intent holds the QDF-1 "indication of intent" fields.
type Intent struct {
	Title                    string `json:"title"`
	OrganizationName         string `json:"organization_name,omitempty"`
	OrganizationType         string `json:"organization_type,omitempty"`
	OrganizationAddress      string `json:"organization_address,omitempty"`
	ContactPersonName        string `json:"contact_person_name,omitempty"`
	ContactPersonDesignation string `json:"contact_person_designation,omitempty"`
	ContactPersonPhone       string `json:"contact_person_phone,omitempty"`
	ContactPersonEmail       string `json:"contact_person_email,omitempty"`
	Description              string `json:"description,omitempty"`
	JustificationSummary     string `json:"justification_summary,omitempty"`
	JustificationSupport     string `json:"justification_support,omitempty"`
	AuthorizedPerson         string `json:"authorized_person,omitempty"`
	Level                    int    `json:"level,omitempty"`
	Sector                   string `json:"sector,omitempty"`
}

// Review holds the QDF-2 acceptance/non-acceptance fields.
type Review struct {
	DateReceived        string   `json:"date_received,omitempty"`
	DateReviewed        string   `json:"date_reviewed,omitempty"`
	Decision            Decision `json:"decision,omitempty"`
	DecisionComments    string   `json:"decision_comments,omitempty"`
	ReasonsForRejection string   `json:"reasons_for_rejection,omitempty"`
	SubmissionDueDate   string   `json:"submission_due_date,omitempty"`
	ReviewerSignature   string   `json:"reviewer_signature,omitempty"`
}

// QDF is the Qualification Development Form, the unit of work.
type QDF struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	Intent
	Review

	QDCMembers  []QDCMember      `json:"qdc_members,omitempty"`
	QAChecklist *QAChecklistData `json:"qa_checklist,omitempty"`

	Status          Status          `json:"status"`
	SubmittedBy     string          `json:"submitted_by"`
	SubmissionDate  string          `json:"submission_date"`
	LastUpdated     string          `json:"last_updated" format:"date-time"`
	WorkflowHistory []WorkflowEvent `json:"workflow_history"`
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (q QDF) Clone() QDF {
	out := q
	if q.QDCMembers != nil {
		out.QDCMembers = append([]QDCMember(nil), q.QDCMembers...)
	}
	if q.QAChecklist != nil {
		c := *q.QAChecklist
		if q.QAChecklist.Items != nil {
			c.Items = make(map[int]ChecklistResponse, len(q.QAChecklist.Items))
			for k, v := range q.QAChecklist.Items {
				c.Items[k] = v
			}
		}
		out.QAChecklist = &c
	}
	if q.WorkflowHistory != nil {
		out.WorkflowHistory = append([]WorkflowEvent(nil), q.WorkflowHistory...)
	}
	return out
}

// Qualification is a published registry entry.
type Qualification struct {
	ID           string `json:"id"`
	QDFID        string `json:"qdf_id,omitempty"`
	Title        string `json:"title"`
	Sector       string `json:"sector"`
	NVQFLevel    int    `json:"nvqf_level"`
	ApprovalYear int    `json:"approval_year"`
	Version      string `json:"version"`
}

type Actor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
