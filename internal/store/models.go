package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	Email                 string
	Name                  string
	PasswordHash          string
	ProfileImage          *string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
}

type Team struct {
	ID        string
	Name      string
	OwnerID   string
	MyRole    string
	CreatedAt time.Time
}

type TeamMember struct {
	ID        string
	TeamID    string
	UserID    string
	Role      string
	JoinedAt  time.Time
	UserName  string
	UserEmail string
}

type TeamInvitation struct {
	ID        string
	TeamID    string
	TeamName  string
	Email     string
	InvitedBy string
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Actions recorded in the team activity log.
const (
	ActivityTeamCreated       = "team_created"
	ActivityTeamRenamed       = "team_renamed"
	ActivityMemberInvited     = "member_invited"
	ActivityMemberJoined      = "member_joined"
	ActivityMemberLeft        = "member_left"
	ActivityMemberKicked      = "member_kicked"
	ActivityRoleChanged       = "role_changed"
	ActivityProjectCreated    = "project_created"
	ActivityProjectArchived   = "project_archived"
	ActivityProjectUnarchived = "project_unarchived"
	ActivityProjectDeleted    = "project_deleted"
)

type ActivityLog struct {
	ID         string
	TeamID     string
	ActorID    string
	ActorName  string
	Action     string
	TargetType string
	TargetID   string
	Details    json.RawMessage
	CreatedAt  time.Time
}

type Project struct {
	ID          string
	TeamID      string
	Name        string
	Description string
	OwnerID     string
	IsArchived  bool
	IsFavorite  bool
	CreatedAt   time.Time
}

type ProjectStatus struct {
	ID        string
	ProjectID string
	Name      string
	Color     string
	Position  int
	IsDefault bool
	WIPLimit  *int
}

type Label struct {
	ID        string
	ProjectID string
	Name      string
	Color     string
}

type Issue struct {
	ID           string
	ProjectID    string
	Title        string
	Description  string
	StatusID     string
	StatusName   string
	Priority     string
	AssigneeID   *string
	AssigneeName string
	OwnerID      string
	DueDate      *time.Time
	Position     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Labels       []Label
}

// IssuePatch carries the fields an update touches. Nil means unchanged.
type IssuePatch struct {
	Title       *string
	Description *string
	Priority    *string
	// AssigneeID and DueDate use an empty string to clear.
	AssigneeID *string
	DueDate    *string
}

type IssueFilter struct {
	StatusID   string
	AssigneeID string
	Priority   string
	Query      string
	IDs        []string
}

type HistoryEntry struct {
	ID            string
	IssueID       string
	Field         string
	OldValue      *string
	NewValue      *string
	ChangedBy     string
	ChangedByName string
	ChangedAt     time.Time
}

type Subtask struct {
	ID          string
	IssueID     string
	Title       string
	IsCompleted bool
	Position    int
}

type Comment struct {
	ID        string
	IssueID   string
	UserID    string
	UserName  string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	NotificationIssueAssigned = "issue_assigned"
	NotificationCommentAdded  = "comment_added"
	NotificationTeamInvite    = "team_invite"
)

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Content   string
	Link      *string
	IsRead    bool
	CreatedAt time.Time
}

// ProjectStats feeds the dashboard.
type ProjectStats struct {
	Total      int
	ByStatus   []StatusCount
	ByPriority map[string]int
	Overdue    int
}

type StatusCount struct {
	StatusID string
	Name     string
	Color    string
	Count    int
}
