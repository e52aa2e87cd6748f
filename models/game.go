package models

import "time"

const (
	GameStatusPending   = "pending"
	GameStatusActive    = "active"
	GameStatusCompleted = "completed"
	GameStatusCancelled = "cancelled"
)

const (
	PlayoffRoundSemifinal = "semifinal"
	PlayoffRoundFinal     = "final"
	PlayoffRoundGold      = "gold"
	PlayoffRoundBronze    = "bronze"
	PlayoffRoundQualifier = "qualifier"
	PlayoffRoundMedal     = "medal"
)

// Game is a single 2v2 doubles game. The four player references are direct
// columns, not a join table. GameNumber is unique per session and is the
// queue priority: lower numbers play first.
type Game struct {
	ID         string  `json:"id" gorm:"primaryKey"`
	SessionID  string  `json:"session_id" gorm:"not null;index"`
	CourtID    *string `json:"court_id,omitempty" gorm:"index"` // nil = queued
	GameNumber int     `json:"game_number" gorm:"not null;index"`
	Stage      *int    `json:"stage,omitempty"` // tournament only, 1..3
	Status     string  `json:"status" gorm:"default:'pending';index"`

	Team1Player1ID string `json:"team1_player1_id" gorm:"not null"`
	Team1Player2ID string `json:"team1_player2_id" gorm:"not null"`
	Team2Player1ID string `json:"team2_player1_id" gorm:"not null"`
	Team2Player2ID string `json:"team2_player2_id" gorm:"not null"`

	Team1Score int `json:"team1_score" gorm:"default:0"`
	Team2Score int `json:"team2_score" gorm:"default:0"`

	// Per-set scores, best-of-3 sessions only. A set that was not played
	// stays at zero.
	Team1Set1 int `json:"team1_set1" gorm:"default:0"`
	Team2Set1 int `json:"team2_set1" gorm:"default:0"`
	Team1Set2 int `json:"team1_set2" gorm:"default:0"`
	Team2Set2 int `json:"team2_set2" gorm:"default:0"`
	Team1Set3 int `json:"team1_set3" gorm:"default:0"`
	Team2Set3 int `json:"team2_set3" gorm:"default:0"`

	Team1SetsWon int `json:"team1_sets_won" gorm:"default:0"`
	Team2SetsWon int `json:"team2_sets_won" gorm:"default:0"`

	WinnerTeam    int    `json:"winner_team" gorm:"default:0"` // 1 or 2, 0 until completed
	IsPlayoffGame bool   `json:"is_playoff_game" gorm:"default:false;index"`
	PlayoffRound  string `json:"playoff_round,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Court        *Court  `json:"court,omitempty" gorm:"foreignKey:CourtID"`
	Team1Player1 *Player `json:"team1_player1,omitempty" gorm:"foreignKey:Team1Player1ID"`
	Team1Player2 *Player `json:"team1_player2,omitempty" gorm:"foreignKey:Team1Player2ID"`
	Team2Player1 *Player `json:"team2_player1,omitempty" gorm:"foreignKey:Team2Player1ID"`
	Team2Player2 *Player `json:"team2_player2,omitempty" gorm:"foreignKey:Team2Player2ID"`
}

func (g *Game) AllPlayerIDs() []string {
	return []string{g.Team1Player1ID, g.Team1Player2ID, g.Team2Player1ID, g.Team2Player2ID}
}

func (g *Game) Team1PlayerIDs() []string {
	return []string{g.Team1Player1ID, g.Team1Player2ID}
}

func (g *Game) Team2PlayerIDs() []string {
	return []string{g.Team2Player1ID, g.Team2Player2ID}
}

func (g *Game) IsOnTeam1(playerID string) bool {
	return playerID == g.Team1Player1ID || playerID == g.Team1Player2ID
}

func (g *Game) WinningPlayerIDs() []string {
	if g.WinnerTeam == 1 {
		return g.Team1PlayerIDs()
	}
	return g.Team2PlayerIDs()
}

func (g *Game) LosingPlayerIDs() []string {
	if g.WinnerTeam == 1 {
		return g.Team2PlayerIDs()
	}
	return g.Team1PlayerIDs()
}

// DecidingSetPlayed reports whether a best-of-3 game went to the third set.
func (g *Game) DecidingSetPlayed() bool {
	return g.Team1Set3 > 0 || g.Team2Set3 > 0
}
