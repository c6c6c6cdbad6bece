package app

import (
	"time"

	"jiralite/api/internal/aicache"
	"jiralite/api/internal/store"
)

const dateLayout = "2006-01-02"

func userJSON(u store.User) map[string]any {
	return map[string]any{
		"id":              u.ID,
		"email":           u.Email,
		"name":            u.Name,
		"profileImage":    u.ProfileImage,
		"isEmailVerified": u.IsEmailVerified,
		"createdAt":       u.CreatedAt,
	}
}

func teamJSON(t store.Team) map[string]any {
	return map[string]any{
		"id":        t.ID,
		"name":      t.Name,
		"ownerId":   t.OwnerID,
		"myRole":    t.MyRole,
		"createdAt": t.CreatedAt,
	}
}

func memberJSON(m store.TeamMember) map[string]any {
	return map[string]any{
		"userId":   m.UserID,
		"name":     m.UserName,
		"email":    m.UserEmail,
		"role":     m.Role,
		"joinedAt": m.JoinedAt,
	}
}

func invitationJSON(inv store.TeamInvitation) map[string]any {
	return map[string]any{
		"id":        inv.ID,
		"teamId":    inv.TeamID,
		"teamName":  inv.TeamName,
		"email":     inv.Email,
		"status":    inv.Status,
		"expiresAt": inv.ExpiresAt,
		"createdAt": inv.CreatedAt,
	}
}

func activityJSON(a store.ActivityLog) map[string]any {
	out := map[string]any{
		"id":         a.ID,
		"actorId":    a.ActorID,
		"actorName":  a.ActorName,
		"action":     a.Action,
		"targetType": a.TargetType,
		"targetId":   a.TargetID,
		"createdAt":  a.CreatedAt,
	}
	if len(a.Details) > 0 {
		out["details"] = a.Details
	}
	return out
}

func projectJSON(p store.Project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"teamId":      p.TeamID,
		"name":        p.Name,
		"description": p.Description,
		"ownerId":     p.OwnerID,
		"isArchived":  p.IsArchived,
		"isFavorite":  p.IsFavorite,
		"createdAt":   p.CreatedAt,
	}
}

func statusJSON(st store.ProjectStatus) map[string]any {
	return map[string]any{
		"id":        st.ID,
		"name":      st.Name,
		"color":     st.Color,
		"position":  st.Position,
		"isDefault": st.IsDefault,
		"wipLimit":  st.WIPLimit,
	}
}

func labelJSON(l store.Label) map[string]any {
	return map[string]any{"id": l.ID, "name": l.Name, "color": l.Color}
}

func issueJSON(it store.Issue) map[string]any {
	labels := make([]map[string]any, 0, len(it.Labels))
	for _, l := range it.Labels {
		labels = append(labels, labelJSON(l))
	}
	return map[string]any{
		"id":           it.ID,
		"projectId":    it.ProjectID,
		"title":        it.Title,
		"description":  it.Description,
		"statusId":     it.StatusID,
		"statusName":   it.StatusName,
		"priority":     it.Priority,
		"assigneeId":   it.AssigneeID,
		"assigneeName": it.AssigneeName,
		"ownerId":      it.OwnerID,
		"dueDate":      formatDue(it.DueDate),
		"position":     it.Position,
		"labels":       labels,
		"createdAt":    it.CreatedAt,
		"updatedAt":    it.UpdatedAt,
	}
}

func formatDue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func historyJSON(h store.HistoryEntry) map[string]any {
	return map[string]any{
		"id":            h.ID,
		"field":         h.Field,
		"oldValue":      h.OldValue,
		"newValue":      h.NewValue,
		"changedBy":     h.ChangedBy,
		"changedByName": h.ChangedByName,
		"changedAt":     h.ChangedAt,
	}
}

func subtaskJSON(st store.Subtask) map[string]any {
	return map[string]any{
		"id":          st.ID,
		"issueId":     st.IssueID,
		"title":       st.Title,
		"isCompleted": st.IsCompleted,
		"position":    st.Position,
	}
}

func commentJSON(c store.Comment) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"issueId":   c.IssueID,
		"userId":    c.UserID,
		"userName":  c.UserName,
		"content":   c.Content,
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}

func notificationJSON(n store.Notification) map[string]any {
	return map[string]any{
		"id":        n.ID,
		"type":      n.Type,
		"title":     n.Title,
		"content":   n.Content,
		"link":      n.Link,
		"isRead":    n.IsRead,
		"createdAt": n.CreatedAt,
	}
}

func artifactJSON(a aicache.Artifact) map[string]any {
	return map[string]any{
		"id":            a.ID,
		"issueId":       a.IssueID,
		"type":          string(a.Type),
		"content":       a.Content,
		"createdAt":     a.CreatedAt,
		"invalidatedAt": a.InvalidatedAt,
	}
}

func mapList[T any](items []T, fn func(T) map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}
