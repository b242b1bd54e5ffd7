package domain

import "time"

type Problem struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Difficulty    string     `json:"difficulty" enum:"easy,medium,hard,expert"`
	Status        string     `json:"status" enum:"open,in-progress,solved"`
	CreatedBy     string     `json:"created_by"`
	Budget        *float64   `json:"budget,omitempty"`
	Reward        *int       `json:"reward,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty" format:"date-time"`
	Tags          []string   `json:"tags"`
	Requirements  []string   `json:"requirements"`
	SolversNeeded int        `json:"solvers_needed"`
	Submissions   int        `json:"submissions"`
	Views         int        `json:"views"`
	CreatedAt     time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt     time.Time  `json:"updated_at" format:"date-time"`
}

type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	IsPartner   bool      `json:"is_partner"`
	Bio         string    `json:"bio,omitempty"`
	Skills      []string  `json:"skills,omitempty"`
	CreatedAt   time.Time `json:"created_at" format:"date-time"`
	UpdatedAt   time.Time `json:"updated_at" format:"date-time"`
}

type Solution struct {
	ID            string    `json:"id"`
	ProblemID     string    `json:"problem_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	CreatedBy     string    `json:"created_by"`
	Status        string    `json:"status" enum:"pending,accepted,rejected"`
	Price         *float64  `json:"price,omitempty"`
	EstimatedTime string    `json:"estimated_time,omitempty"`
	CreatedAt     time.Time `json:"created_at" format:"date-time"`
	UpdatedAt     time.Time `json:"updated_at" format:"date-time"`
}

type PartnerApplication struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CompanyName  string    `json:"company_name"`
	Description  string    `json:"description"`
	Website      string    `json:"website,omitempty"`
	ContactEmail string    `json:"contact_email"`
	Phone        string    `json:"phone,omitempty"`
	Status       string    `json:"status" enum:"pending,approved,rejected"`
	CreatedAt    time.Time `json:"created_at" format:"date-time"`
	UpdatedAt    time.Time `json:"updated_at" format:"date-time"`
}

// Message is one turn in the chat widget. Sender is immutable after
// creation; turns are append-only and ordered by insertion.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender" enum:"user,bot"`
	Timestamp time.Time `json:"timestamp" format:"date-time"`
}

// BotReply is the dispatcher's output: display text plus optional
// suggested follow-ups. Text is always non-empty.
type BotReply struct {
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions,omitempty"`
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
