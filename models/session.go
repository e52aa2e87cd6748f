package models

import (
	"time"
)

type SessionType string

const (
	SessionTournament SessionType = "T"   // 3 fixed stages driven by a template
	SessionPlayoff4   SessionType = "P4"  // regular phase + single final
	SessionPlayoff8   SessionType = "P8"  // regular phase + semifinals + gold/bronze
	SessionOptimized  SessionType = "OPT" // template-driven, no stages or playoffs
	SessionSimple     SessionType = "SIM" // random pairing fallback only
)

const (
	SessionStatusDraft     = "draft"
	SessionStatusPending   = "pending"
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// Session is the aggregate root. Courts, players and games belong to exactly
// one session; all scheduling state lives inside it.
type Session struct {
	ID              string      `json:"id" gorm:"primaryKey"`
	UserID          string      `json:"user_id" gorm:"index;not null"`
	SessionName     string      `json:"session_name" gorm:"not null"`
	SessionCode     string      `json:"session_code" gorm:"uniqueIndex"`
	NumberOfCourts  int         `json:"number_of_courts" gorm:"not null"`
	DurationHours   int         `json:"duration_hours" gorm:"not null"`
	NumberOfPlayers int         `json:"number_of_players" gorm:"not null"`
	PointsPerGame   int         `json:"points_per_game" gorm:"default:11"`
	WinBy           int         `json:"win_by" gorm:"default:2"`
	NumberOfSets    int         `json:"number_of_sets" gorm:"default:1"` // 1 or 3
	SessionType     SessionType `json:"session_type" gorm:"type:varchar(8);not null"`
	CurrentStage    int         `json:"current_stage" gorm:"default:1"` // tournament only, 1..3
	Status          string      `json:"status" gorm:"default:'pending';index"`

	ProgressPercentage float64 `json:"progress_percentage" gorm:"default:0"`
	// TotalGames is the format-specific expected total, cached at generation
	// time. It is the progress denominator and includes playoff games that
	// have not been generated yet.
	TotalGames int `json:"total_games" gorm:"default:0"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Courts  []Court  `json:"courts,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Players []Player `json:"players,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Games   []Game   `json:"games,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (s *Session) IsTournament() bool {
	return s.SessionType == SessionTournament
}

func (s *Session) IsPlayoff4() bool {
	return s.SessionType == SessionPlayoff4
}

func (s *Session) IsPlayoff8() bool {
	return s.SessionType == SessionPlayoff8
}

func (s *Session) IsPlayoff() bool {
	return s.IsPlayoff4() || s.IsPlayoff8()
}

// IsValidScore applies the session's score rules to one game (or one set):
// no ties, the winner reaches at least PointsPerGame, and wins by at least
// WinBy. Symmetric in its arguments.
func (s *Session) IsValidScore(scoreA, scoreB int) bool {
	if scoreA == scoreB {
		return false
	}
	winner, loser := scoreA, scoreB
	if scoreB > scoreA {
		winner, loser = scoreB, scoreA
	}
	if winner < s.PointsPerGame {
		return false
	}
	if winner-loser < s.WinBy {
		return false
	}
	return true
}

// PlayoffGameCount is the number of bracket games the format adds on top of
// the regular phase.
func (s *Session) PlayoffGameCount() int {
	switch {
	case s.IsPlayoff4():
		return 1 // final
	case s.IsPlayoff8():
		return 4 // two semifinals + gold + bronze
	default:
		return 0
	}
}
