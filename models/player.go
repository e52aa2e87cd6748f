package models

import "time"

const (
	LevelAboveAverage = "Above Average"
	LevelAverage      = "Average"
	LevelBelowAverage = "Below Average"
)

type Player struct {
	ID           string `json:"id" gorm:"primaryKey"`
	SessionID    string `json:"session_id" gorm:"not null;index"`
	FirstName    string `json:"first_name" gorm:"not null"`
	LastInitial  string `json:"last_initial"`
	Level        string `json:"level" gorm:"default:'Average'"`
	DominantHand string `json:"dominant_hand" gorm:"default:'None'"`

	InitialRating float64 `json:"initial_rating"`
	CurrentRating float64 `json:"current_rating"`
	CurrentRank   int     `json:"current_rank" gorm:"default:0"`

	GamesPlayed         int     `json:"games_played" gorm:"default:0"`
	GamesWon            int     `json:"games_won" gorm:"default:0"`
	GamesLost           int     `json:"games_lost" gorm:"default:0"`
	TotalPointsWon      int     `json:"total_points_won" gorm:"default:0"`
	TotalPointsLost     int     `json:"total_points_lost" gorm:"default:0"`
	WinPercentage       float64 `json:"win_percentage" gorm:"default:0"`
	PointsWonPercentage float64 `json:"points_won_percentage" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (p *Player) DisplayName() string {
	if p.LastInitial == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastInitial + "."
}

// InitialRatingForLevel seeds the ELO rating from the self-reported level.
func InitialRatingForLevel(level string) float64 {
	switch level {
	case LevelAboveAverage:
		return 1200
	case LevelBelowAverage:
		return 800
	default:
		return 1000
	}
}

// RefreshDerivedStats recomputes the cached percentages from the counters.
func (p *Player) RefreshDerivedStats() {
	if p.GamesPlayed > 0 {
		p.WinPercentage = float64(p.GamesWon) / float64(p.GamesPlayed) * 100
	} else {
		p.WinPercentage = 0
	}
	totalPoints := p.TotalPointsWon + p.TotalPointsLost
	if totalPoints > 0 {
		p.PointsWonPercentage = float64(p.TotalPointsWon) / float64(totalPoints) * 100
	} else {
		p.PointsWonPercentage = 0
	}
}
