package domain

// DateLayout is the wire and storage layout for calendar dates.
const DateLayout = "2006-01-02"

type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// APIKey is a long-lived credential bound to an account. Only the hash of
// the key is stored.
type APIKey struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Pin         bool              `json:"pin"`
	OwnerID     string            `json:"owner_id,omitempty"`
	StartDate   string            `json:"start_date,omitempty" format:"date"`
	EndDate     string            `json:"end_date,omitempty" format:"date"`
	SprintWeeks int               `json:"sprint_weeks"`
	PluginMeta  map[string]string `json:"plugin_meta,omitempty"`
	CreatedAt   string            `json:"created_at" format:"date-time"`
	UpdatedAt   string            `json:"updated_at" format:"date-time"`
}

// WorkItem is a backlog or sprint-log entry.
type WorkItem struct {
	ID           string            `json:"id"`
	Slug         string            `json:"slug"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	ProjectSlug  string            `json:"project_slug"`
	SprintNumber int               `json:"sprint_number"`
	Progress     Progress          `json:"progress" enum:"empty,in_progress,half_way,ready"`
	Priority     Priority          `json:"priority" enum:"low,med,hi"`
	Status       Status            `json:"status" enum:"new,started,checked_in,completed,cancelled"`
	Type         ItemType          `json:"type" enum:"backlog,task,draft,self"`
	Category     Category          `json:"category"`
	Order        int               `json:"order"`
	Points       int               `json:"points"`
	EstDays      float64           `json:"est_days"`
	BegDate      string            `json:"beg_date,omitempty" format:"date"`
	EndDate      string            `json:"end_date,omitempty" format:"date"`
	DueDate      string            `json:"due_date,omitempty" format:"date"`
	Labels       []string          `json:"labels,omitempty"`
	OwnerID      string            `json:"owner_id,omitempty"`
	AssigneeID   string            `json:"assignee_id,omitempty"`
	PluginMeta   map[string]string `json:"plugin_meta,omitempty"`
	CreatedAt    string            `json:"created_at" format:"date-time"`
	UpdatedAt    string            `json:"updated_at" format:"date-time"`
}

// Clone returns a copy that shares no maps or slices with w.
func (w WorkItem) Clone() WorkItem {
	out := w
	out.PluginMeta = CloneMeta(w.PluginMeta)
	if w.Labels != nil {
		out.Labels = append([]string(nil), w.Labels...)
	}
	return out
}

// ItemView is what lifecycle plugins see: the item plus the related
// display fields they need to render it elsewhere.
type ItemView struct {
	Item         WorkItem
	ProjectName  string
	ProjectPin   bool
	AssigneeName string
	OwnerEmail   string
}

// Clone deep-copies the embedded item.
func (v ItemView) Clone() ItemView {
	v.Item = v.Item.Clone()
	return v
}

// ProjectView is the project plus the owner fields project plugins need.
type ProjectView struct {
	Project    Project
	OwnerName  string
	OwnerEmail string
}

func (v ProjectView) Clone() ProjectView {
	v.Project.PluginMeta = CloneMeta(v.Project.PluginMeta)
	return v
}

type Audit struct {
	ID        int64  `json:"id"`
	ItemID    string `json:"item_id"`
	Field     string `json:"field"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	ActorID   string `json:"actor_id,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	ProjectSlug string `json:"project_slug,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

// ItemFilters narrows item listings. Zero values are ignored.
type ItemFilters struct {
	ProjectSlug  string
	Type         ItemType
	Status       Status
	SprintNumber *int
	AssigneeID   string
	Limit        int
	Offset       int
}

// CloneMeta copies a plugin metadata map; nil stays nil.
func CloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetaEqual reports whether two metadata maps hold the same pairs. A nil map
// and an empty map are equal.
func MetaEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
