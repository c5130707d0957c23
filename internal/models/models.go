package models

import (
	"fmt"
	"strings"
	"time"
)

type Participant struct {
	ID          int64
	Handle      int64 // Telegram user id
	DisplayName string
	CreatedAt   time.Time
}

type Category struct {
	ID   int64
	Code string // MGP, MT2, MT3
	Name string
}

// Event is a dated meeting at a venue (a Grand Prix weekend).
type Event struct {
	ID          int64
	Season      int
	Name        string
	Country     string
	Circuit     string
	Date        time.Time
	ExternalRef string
}

type ScoringProfile struct {
	Exact         int // rider and position both right
	RiderOnly     int // rider on the podium, wrong slot
	PerfectPodium int // bonus when all three slots are exact
}

type RaceKind struct {
	ID      int64
	Code    string // SPR, RAC
	Name    string
	Profile ScoringProfile
}

type RaceStatus string

const (
	RaceUpcoming      RaceStatus = "upcoming"
	RaceBettingOpen   RaceStatus = "betting_open"
	RaceBettingClosed RaceStatus = "betting_closed"
	RaceInProgress    RaceStatus = "in_progress"
	RaceFinished      RaceStatus = "finished"
	RaceCancelled     RaceStatus = "cancelled"
)

func (s RaceStatus) Terminal() bool {
	return s == RaceFinished || s == RaceCancelled
}

func (s RaceStatus) Valid() bool {
	switch s {
	case RaceUpcoming, RaceBettingOpen, RaceBettingClosed, RaceInProgress, RaceFinished, RaceCancelled:
		return true
	}
	return false
}

// ActiveRaceStatuses are the statuses whose bets still count as "active".
var ActiveRaceStatuses = []RaceStatus{RaceUpcoming, RaceBettingOpen, RaceBettingClosed, RaceInProgress}

type Race struct {
	ID            int64
	EventID       int64
	CategoryID    int64
	KindID        int64
	StartsAt      time.Time
	BetCloseAt    time.Time
	Status        RaceStatus
	ExternalRef   string
	ResultVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RaceDetails is a race with the entities it references, for messages and listings.
type RaceDetails struct {
	Race     Race
	Event    Event
	Category Category
	Kind     RaceKind
}

func (d RaceDetails) Title() string {
	return fmt.Sprintf("%s · %s %s", d.Event.Name, d.Category.Name, d.Kind.Name)
}

type Rider struct {
	ID          int64
	ExternalRef string
	FirstName   string
	LastName    string
	Number      int
	Country     string
}

func (r Rider) Label() string {
	name := strings.TrimSpace(r.LastName)
	if name == "" {
		name = strings.TrimSpace(r.FirstName)
	}
	if r.Number > 0 {
		return fmt.Sprintf("#%d %s", r.Number, name)
	}
	return name
}

// Picks are rider ids predicted for 1st, 2nd and 3rd.
type Picks [3]int64

func (p Picks) Distinct() bool {
	return p[0] != p[1] && p[0] != p[2] && p[1] != p[2]
}

type Bet struct {
	ID            int64
	ParticipantID int64
	RaceID        int64
	Picks         Picks
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type FinishStatus string

const (
	FinishClassified   FinishStatus = "finished"
	FinishDNF          FinishStatus = "dnf"
	FinishDNS          FinishStatus = "dns"
	FinishDisqualified FinishStatus = "dsq"
)

func ParseFinishStatus(s string) FinishStatus {
	switch FinishStatus(strings.ToLower(strings.TrimSpace(s))) {
	case FinishDNF:
		return FinishDNF
	case FinishDNS:
		return FinishDNS
	case FinishDisqualified:
		return FinishDisqualified
	default:
		return FinishClassified
	}
}

type ResultEntry struct {
	RaceID   int64
	RiderID  int64
	Position int
	Status   FinishStatus
}

type Score struct {
	ID            int64
	BetID         int64
	RaceID        int64
	ParticipantID int64
	Slots         [3]int
	Bonus         int
	Total         int
	ResultVersion int
	CreatedAt     time.Time
}

type CategoryStanding struct {
	Season            int
	CategoryID        int64
	ParticipantID     int64
	TotalPoints       int
	RacesParticipated int
	UpdatedAt         time.Time
}

type GlobalStanding struct {
	Season            int
	ParticipantID     int64
	TotalPoints       int
	RacesParticipated int
	CategoryPoints    map[string]int // keyed by category code
	UpdatedAt         time.Time
}

type NotificationKind string

const (
	NotifyClosingSoon   NotificationKind = "closing_soon"
	NotifyBettingClosed NotificationKind = "betting_closed"
	NotifyRaceResult    NotificationKind = "race_result"
)

type NotificationRecord struct {
	ID     string
	RaceID int64
	Kind   NotificationKind
	SentAt time.Time
}
