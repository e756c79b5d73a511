package types

import (
	"encoding/json"
	"time"
)

// Envelope is the frame exchanged on the session channel.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type AttendanceEntry struct {
	Round  int    `json:"round"`
	Status string `json:"status"` // "Present" | "Absent"
}

type Member struct {
	Name               string            `json:"name"`
	RegistrationNumber string            `json:"registrationNumber"`
	Year               string            `json:"year,omitempty"`
	Department         string            `json:"department,omitempty"`
	Section            string            `json:"section,omitempty"`
	Room               string            `json:"room,omitempty"`
	Type               string            `json:"type,omitempty"`
	QRCode             string            `json:"qrCode,omitempty"`
	Attendance         []AttendanceEntry `json:"attendance,omitempty"`
}

type Issue struct {
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Team is the server-owned team record. The client never merges it field by
// field; a fresher copy replaces the cached one.
type Team struct {
	ID                 string   `json:"_id"`
	TeamName           string   `json:"teamname"`
	Name               string   `json:"name"`
	Email              string   `json:"email,omitempty"`
	RegistrationNumber string   `json:"registrationNumber"`
	Year               string   `json:"year,omitempty"`
	Department         string   `json:"department,omitempty"`
	Section            string   `json:"section,omitempty"`
	Phone              string   `json:"phone,omitempty"`
	Room               string   `json:"room,omitempty"`
	Type               string   `json:"type,omitempty"`
	Lead               Member   `json:"lead"`
	Members            []Member `json:"teamMembers"`
	Sector             string   `json:"Sector,omitempty"`
	Domain             string   `json:"Domain,omitempty"`

	MemoryGamePlayed   bool `json:"memoryGamePlayed"`
	MemoryGameScore    int  `json:"memoryGameScore"`
	NumberPuzzlePlayed bool `json:"numberPuzzlePlayed"`
	NumberPuzzleScore  int  `json:"numberPuzzleScore"`
	StopTheBarPlayed   bool `json:"stopTheBarPlayed"`
	StopTheBarScore    int  `json:"stopTheBarScore"`

	Issues []Issue `json:"issues,omitempty"`

	Verified      bool   `json:"verified"`
	ImgURL        string `json:"imgUrl,omitempty"`
	TransactionID string `json:"transtationId,omitempty"`
	UPIID         string `json:"upiId,omitempty"`

	FirstReview       bool `json:"FirstReview"`
	FirstReviewScore  int  `json:"FirstReviewScore"`
	SecondReview      bool `json:"SecoundReview"`
	SecondReviewScore int  `json:"SecoundReviewScore"`
}

// AllMembers returns the lead followed by the other members.
func (t Team) AllMembers() []Member {
	lead := t.Lead
	lead.Name = t.Name
	lead.RegistrationNumber = t.RegistrationNumber
	return append([]Member{lead}, t.Members...)
}

type DomainOffer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Set         string `json:"set"`
	Slots       int    `json:"slots"`
}

// DomainSlotsTotal is the per-domain team capacity used for the slot bar.
const DomainSlotsTotal = 4

type DomainSelectRequest struct {
	TeamID string `json:"teamId"`
	Domain string `json:"domain"`
}

type DomainSelectedReply struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Domain  *struct {
		Name string `json:"name"`
	} `json:"domain,omitempty"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

type ReminderPayload struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

type ReviewStatus struct {
	FirstReviewOpen  bool `json:"isFirstReviewOpen"`
	SecondReviewOpen bool `json:"isSecondReviewOpen"`
}

type RegistrationStatus struct {
	Closed   bool       `json:"isClosed"`
	OpenTime *time.Time `json:"openTime,omitempty"`
	Count    int        `json:"count"`
	Limit    int        `json:"limit"`
}

type EditDetailsStatus struct {
	Open bool `json:"isEditDetailsOpen"`
}

// Game names one of the dashboard's single-attempt mini-games.
type Game string

const (
	GameMemory       Game = "memory"
	GameNumberPuzzle Game = "numberPuzzle"
	GameStopTheBar   Game = "stopTheBar"
)

var Games = []Game{GameMemory, GameNumberPuzzle, GameStopTheBar}

// Played reports whether the record says the team already used its attempt.
func (t Team) Played(g Game) bool {
	switch g {
	case GameMemory:
		return t.MemoryGamePlayed
	case GameNumberPuzzle:
		return t.NumberPuzzlePlayed
	case GameStopTheBar:
		return t.StopTheBarPlayed
	}
	return false
}

type AttendanceSubmission struct {
	TeamID string            `json:"teamId"`
	Round  int               `json:"roundNumber"`
	Marks  map[string]string `json:"attendanceData"` // registration number -> status
}

type PaymentProof struct {
	TeamID        string `json:"teamId"`
	UPIID         string `json:"upiId"`
	TransactionID string `json:"transtationId"`
	ImgURL        string `json:"imgUrl"`
}

type PaymentLookup struct {
	AlreadySubmitted bool   `json:"alreadySubmitted"`
	TeamID           string `json:"teamId"`
	TeamName         string `json:"teamname,omitempty"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
}

// RubricItem is one scored criterion of a review round.
type RubricItem struct {
	Criteria string `json:"criteria"`
	Marks    int    `json:"marks"`
	Max      int    `json:"max"`
}

type ReviewSubmission struct {
	Score        int                   `json:"score"`
	FirstReview  map[string]RubricItem `json:"FirstReview,omitempty"`
	SecondReview map[string]RubricItem `json:"SecoundReview,omitempty"`
}
