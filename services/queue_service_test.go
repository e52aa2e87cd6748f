package services

import (
	"testing"

	"pickleball-session-system/models"

	"github.com/stretchr/testify/assert"
)

func TestReorganizeQueueFillsCourtsInOrder(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 8)
	courts := makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)

	// Three queued games, two courts: games 1 and 2 get courts, 3 waits.
	makeGame(t, db, session, 1, players[0:4], models.GameStatusPending)
	makeGame(t, db, session, 2, players[4:8], models.GameStatusPending)
	makeGame(t, db, session, 3, players[0:4], models.GameStatusPending)

	svc := NewQueueService(db)
	assigned, err := svc.ReorganizeQueue(db, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, assigned)

	var games []models.Game
	db.Where("session_id = ?", session.ID).Order("game_number ASC").Find(&games)
	assert.Equal(t, courts[0].ID, *games[0].CourtID)
	assert.Equal(t, courts[1].ID, *games[1].CourtID)
	assert.Nil(t, games[2].CourtID)
}

func TestReorganizeQueueIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 8)
	courts := makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)

	g1 := makeGame(t, db, session, 1, players[0:4], models.GameStatusPending)
	makeGame(t, db, session, 2, players[4:8], models.GameStatusPending)

	svc := NewQueueService(db)
	_, err := svc.ReorganizeQueue(db, session.ID)
	assert.NoError(t, err)

	var before models.Game
	db.First(&before, "id = ?", g1.ID)

	// A second pass finds nothing to do and moves nothing.
	assigned, err := svc.ReorganizeQueue(db, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, assigned)

	var after models.Game
	db.First(&after, "id = ?", g1.ID)
	assert.Equal(t, *before.CourtID, *after.CourtID)
	assert.Equal(t, courts[0].ID, *after.CourtID)
}

func TestReorganizeQueueSkipsOccupiedAndReservedCourts(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 8)
	courts := makeCourts(t, db, session, 3)
	players := makePlayers(t, db, session, 8)

	// Court 1 occupied by an active game, court 2 reserved by a queued game.
	db.Model(&models.Court{}).Where("id = ?", courts[0].ID).Update("status", models.CourtStatusOccupied)
	active := makeGame(t, db, session, 1, players[0:4], models.GameStatusActive)
	db.Model(&models.Game{}).Where("id = ?", active.ID).Update("court_id", courts[0].ID)
	reserved := makeGame(t, db, session, 2, players[4:8], models.GameStatusPending)
	db.Model(&models.Game{}).Where("id = ?", reserved.ID).Update("court_id", courts[1].ID)

	queued := makeGame(t, db, session, 3, players[0:4], models.GameStatusPending)

	svc := NewQueueService(db)
	assigned, err := svc.ReorganizeQueue(db, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, assigned)

	var got models.Game
	db.First(&got, "id = ?", queued.ID)
	assert.Equal(t, courts[2].ID, *got.CourtID)
}

func TestNextAvailableCourtPicksLowestNumber(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 8)
	courts := makeCourts(t, db, session, 3)
	db.Model(&models.Court{}).Where("id = ?", courts[0].ID).Update("status", models.CourtStatusOccupied)

	svc := NewQueueService(db)
	court, err := svc.NextAvailableCourt(db, session.ID, nil)
	assert.NoError(t, err)
	if assert.NotNil(t, court) {
		assert.Equal(t, 2, court.CourtNumber)
	}
}
