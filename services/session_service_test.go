package services

import (
	"testing"

	"pickleball-session-system/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func newSessionServiceForTest(db *gorm.DB) *SessionService {
	templates := NewTemplateService("testdata/templates")
	queue := NewQueueService(db)
	generator := NewGameGeneratorService(db, templates, queue)
	return NewSessionService(db, generator, queue)
}

func TestUpdateRankingsOrdersByCompositeKey(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 4)
	players := makePlayers(t, db, session, 4)

	set := func(id string, rating float64, won, played, pointsWon, pointsLost int) {
		db.Model(&models.Player{}).Where("id = ?", id).Updates(map[string]interface{}{
			"current_rating":    rating,
			"games_won":         won,
			"games_lost":        played - won,
			"games_played":      played,
			"total_points_won":  pointsWon,
			"total_points_lost": pointsLost,
		})
	}
	set(players[0].ID, 1050, 2, 4, 40, 38)
	set(players[1].ID, 1080, 3, 4, 42, 30)
	set(players[2].ID, 1050, 3, 4, 44, 30) // same rating as players[0], better win%
	set(players[3].ID, 1020, 1, 4, 30, 44)

	svc := newSessionServiceForTest(db)
	assert.NoError(t, svc.UpdateRankings(db, session.ID))

	rank := func(id string) int {
		var p models.Player
		db.First(&p, "id = ?", id)
		return p.CurrentRank
	}
	assert.Equal(t, 1, rank(players[1].ID))
	assert.Equal(t, 2, rank(players[2].ID)) // wins the rating tie on win percentage
	assert.Equal(t, 3, rank(players[0].ID))
	assert.Equal(t, 4, rank(players[3].ID))
}

func TestUpdateRankingsTiedPlayersShareRank(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 4)
	players := makePlayers(t, db, session, 4)

	// Two identical stat lines with different names share a rank: name
	// order is for display only, never a tiebreaker.
	for _, id := range []string{players[0].ID, players[1].ID} {
		db.Model(&models.Player{}).Where("id = ?", id).Updates(map[string]interface{}{
			"current_rating": 1060, "games_won": 2, "games_lost": 2, "games_played": 4,
			"total_points_won": 40, "total_points_lost": 40,
		})
	}
	for _, id := range []string{players[2].ID, players[3].ID} {
		db.Model(&models.Player{}).Where("id = ?", id).Updates(map[string]interface{}{
			"current_rating": 980, "games_won": 1, "games_lost": 3, "games_played": 4,
			"total_points_won": 30, "total_points_lost": 44,
		})
	}

	svc := newSessionServiceForTest(db)
	assert.NoError(t, svc.UpdateRankings(db, session.ID))

	var ranked []models.Player
	db.Where("session_id = ?", session.ID).Order("current_rank ASC, first_name ASC").Find(&ranked)
	assert.Equal(t, 1, ranked[0].CurrentRank)
	assert.Equal(t, 1, ranked[1].CurrentRank)
	assert.Equal(t, 2, ranked[2].CurrentRank)
	assert.Equal(t, 2, ranked[3].CurrentRank)
}

func TestUpdateRankingsIsDeterministic(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 6)
	makePlayers(t, db, session, 6)

	svc := newSessionServiceForTest(db)
	assert.NoError(t, svc.UpdateRankings(db, session.ID))

	var first []models.Player
	db.Where("session_id = ?", session.ID).Order("first_name ASC").Find(&first)

	assert.NoError(t, svc.UpdateRankings(db, session.ID))

	var second []models.Player
	db.Where("session_id = ?", session.ID).Order("first_name ASC").Find(&second)
	for i := range first {
		assert.Equal(t, first[i].CurrentRank, second[i].CurrentRank, "rank of %s changed on rerun", first[i].FirstName)
	}
}

func TestTournamentCompletesOnlyInFinalStage(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionTournament, 8)
	players := makePlayers(t, db, session, 8)

	g := makeGame(t, db, session, 1, players[0:4], models.GameStatusCompleted)
	completeGame(t, db, g, 1, 11, 5)

	svc := newSessionServiceForTest(db)

	session.CurrentStage = 2
	done, err := svc.CompleteSessionIfFinished(db, session)
	assert.NoError(t, err)
	assert.False(t, done)

	session.CurrentStage = 3
	session.Status = models.SessionStatusActive
	done, err = svc.CompleteSessionIfFinished(db, session)
	assert.NoError(t, err)
	assert.True(t, done)

	var got models.Session
	db.First(&got, "id = ?", session.ID)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestPlayoff8NeedsBothMedalGames(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionPlayoff8, 8)
	players := makePlayers(t, db, session, 8)

	gold := makeGame(t, db, session, 10, players[0:4], models.GameStatusCompleted)
	gold.IsPlayoffGame = true
	gold.PlayoffRound = models.PlayoffRoundGold
	completeGame(t, db, gold, 1, 11, 8)

	svc := newSessionServiceForTest(db)
	done, err := svc.CompleteSessionIfFinished(db, session)
	assert.NoError(t, err)
	assert.False(t, done, "gold alone must not complete the session")

	bronze := makeGame(t, db, session, 11, players[4:8], models.GameStatusCompleted)
	bronze.IsPlayoffGame = true
	bronze.PlayoffRound = models.PlayoffRoundBronze
	completeGame(t, db, bronze, 2, 7, 11)

	done, err = svc.CompleteSessionIfFinished(db, session)
	assert.NoError(t, err)
	assert.True(t, done)
}

func TestOpenGamesBlockCompletion(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionPlayoff4, 8)
	players := makePlayers(t, db, session, 8)

	final := makeGame(t, db, session, 5, players[0:4], models.GameStatusCompleted)
	final.IsPlayoffGame = true
	final.PlayoffRound = models.PlayoffRoundFinal
	completeGame(t, db, final, 1, 11, 9)

	// A leftover pending game keeps the session open.
	makeGame(t, db, session, 6, players[4:8], models.GameStatusPending)

	svc := newSessionServiceForTest(db)
	done, err := svc.CompleteSessionIfFinished(db, session)
	assert.NoError(t, err)
	assert.False(t, done)
}

func TestUpdateProgressUsesCachedTotal(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionPlayoff8, 8)
	session.TotalGames = 16
	db.Save(session)
	players := makePlayers(t, db, session, 8)

	for i := 1; i <= 4; i++ {
		g := makeGame(t, db, session, i, players[0:4], models.GameStatusCompleted)
		completeGame(t, db, g, 1, 11, 6)
	}
	// Cancelled games never count toward progress.
	makeGame(t, db, session, 5, players[4:8], models.GameStatusCancelled)

	svc := newSessionServiceForTest(db)
	assert.NoError(t, svc.UpdateProgress(db, session))

	var got models.Session
	db.First(&got, "id = ?", session.ID)
	assert.InDelta(t, 25.0, got.ProgressPercentage, 0.001)
}

func TestCancelOpenGamesKeepsRecordsAndScopesToStage(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionTournament, 8)
	players := makePlayers(t, db, session, 8)

	stage1, stage2 := 1, 2
	g1 := makeGame(t, db, session, 1, players[0:4], models.GameStatusPending)
	db.Model(&models.Game{}).Where("id = ?", g1.ID).Update("stage", stage1)
	g2 := makeGame(t, db, session, 2, players[4:8], models.GameStatusPending)
	db.Model(&models.Game{}).Where("id = ?", g2.ID).Update("stage", stage2)

	svc := newSessionServiceForTest(db)
	assert.NoError(t, svc.cancelOpenGames(db, session.ID, &stage1))

	var got1, got2 models.Game
	db.First(&got1, "id = ?", g1.ID)
	db.First(&got2, "id = ?", g2.ID)
	assert.Equal(t, models.GameStatusCancelled, got1.Status)
	assert.Equal(t, models.GameStatusPending, got2.Status)

	// The cancelled row stays queryable for the session record.
	var count int64
	db.Model(&models.Game{}).Where("session_id = ?", session.ID).Count(&count)
	assert.EqualValues(t, 2, count)
}
