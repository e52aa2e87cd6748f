package services

import (
	"fmt"
	"testing"
	"time"

	"pickleball-session-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	err = db.AutoMigrate(&models.Session{}, &models.Court{}, &models.Player{}, &models.Game{})
	if err != nil {
		t.Fatalf("Failed to migrate tables: %v", err)
	}
	return db
}

func makeSession(t *testing.T, db *gorm.DB, sessionType models.SessionType, numPlayers int) *models.Session {
	t.Helper()

	session := &models.Session{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		SessionName:     "Tuesday Night",
		SessionCode:     "tuesday-night-" + uuid.NewString()[:8],
		NumberOfCourts:  2,
		DurationHours:   2,
		NumberOfPlayers: numPlayers,
		PointsPerGame:   11,
		WinBy:           2,
		NumberOfSets:    1,
		SessionType:     sessionType,
		CurrentStage:    1,
		Status:          models.SessionStatusActive,
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return session
}

func makeCourts(t *testing.T, db *gorm.DB, session *models.Session, n int) []models.Court {
	t.Helper()

	courts := make([]models.Court, n)
	for i := 0; i < n; i++ {
		courts[i] = models.Court{
			ID:          uuid.NewString(),
			SessionID:   session.ID,
			CourtName:   fmt.Sprintf("Court %d", i+1),
			CourtNumber: i + 1,
			Status:      models.CourtStatusAvailable,
		}
		if err := db.Create(&courts[i]).Error; err != nil {
			t.Fatalf("Failed to create court: %v", err)
		}
	}
	return courts
}

// makePlayers creates n players with distinct names, ratings descending from
// 1100 so player index 0 ranks first and creation order is deterministic.
func makePlayers(t *testing.T, db *gorm.DB, session *models.Session, n int) []models.Player {
	t.Helper()

	names := []string{"Alice", "Ben", "Carla", "Dan", "Elena", "Frank", "Grace", "Henry", "Ivy", "Jack", "Kara", "Liam"}
	players := make([]models.Player, n)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		players[i] = models.Player{
			ID:            uuid.NewString(),
			SessionID:     session.ID,
			FirstName:     names[i%len(names)],
			LastInitial:   string(rune('A' + i)),
			Level:         models.LevelAverage,
			InitialRating: 1000,
			CurrentRating: float64(1100 - i*10),
			CurrentRank:   i + 1,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(&players[i]).Error; err != nil {
			t.Fatalf("Failed to create player: %v", err)
		}
	}
	return players
}

func makeGame(t *testing.T, db *gorm.DB, session *models.Session, number int, players []models.Player, status string) *models.Game {
	t.Helper()

	game := &models.Game{
		ID:             uuid.NewString(),
		SessionID:      session.ID,
		GameNumber:     number,
		Team1Player1ID: players[0].ID,
		Team1Player2ID: players[1].ID,
		Team2Player1ID: players[2].ID,
		Team2Player2ID: players[3].ID,
		Status:         status,
	}
	if err := db.Create(game).Error; err != nil {
		t.Fatalf("Failed to create game: %v", err)
	}
	return game
}

func completeGame(t *testing.T, db *gorm.DB, game *models.Game, winnerTeam, score1, score2 int) {
	t.Helper()

	now := time.Now()
	game.Status = models.GameStatusCompleted
	game.WinnerTeam = winnerTeam
	game.Team1Score = score1
	game.Team2Score = score2
	game.CompletedAt = &now
	if err := db.Save(game).Error; err != nil {
		t.Fatalf("Failed to complete game: %v", err)
	}
}
