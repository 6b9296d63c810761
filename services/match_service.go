package services

import (
	"errors"
	"fmt"
	"log"

	"berenjapp/engine"
	"berenjapp/models"
	"berenjapp/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MatchService struct {
	DB    *gorm.DB
	Stats *StatsService
}

func NewMatchService(db *gorm.DB, stats *StatsService) *MatchService {
	return &MatchService{DB: db, Stats: stats}
}

// CreateMatch starts a new active match.
func (s *MatchService) CreateMatch(c *fiber.Ctx) error {
	type Req struct {
		PlayerIDs     []string `json:"player_ids"`
		WinningPoints int      `json:"winning_points"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	match, err := engine.NewMatch(req.PlayerIDs, req.WinningPoints)
	if err != nil {
		return engineError(c, err)
	}

	if err := s.DB.Create(match).Error; err != nil {
		log.Printf("ERROR creating match: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}
	return c.Status(201).JSON(match)
}

// GetAllMatches lists matches, optionally filtered by player and activity.
func (s *MatchService) GetAllMatches(c *fiber.Ctx) error {
	query := s.DB.Preload("Rounds", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	}).Order("created_at DESC")

	if active := c.Query("active"); active != "" {
		query = query.Where("is_active = ?", active == "true")
	}

	var matches []models.Match
	if err := query.Find(&matches).Error; err != nil {
		log.Printf("ERROR fetching matches: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch matches"})
	}

	// Players live in a JSON column, so membership is filtered here rather
	// than in SQL, which keeps the query portable across drivers.
	if playerID := c.Query("player_id"); playerID != "" {
		filtered := matches[:0]
		for _, m := range matches {
			for _, p := range m.Players {
				if p == playerID {
					filtered = append(filtered, m)
					break
				}
			}
		}
		matches = filtered
	}
	return c.JSON(matches)
}

// GetMatchByID returns the full aggregate with rounds in play order.
func (s *MatchService) GetMatchByID(c *fiber.Ctx) error {
	match, err := s.loadMatch(s.DB, c.Params("id"))
	if err != nil {
		return matchLoadError(c, err)
	}
	return c.JSON(match)
}

// GetStandings returns the derived view the scoreboard renders: totals per
// player, the active set and the ranked list.
func (s *MatchService) GetStandings(c *fiber.Ctx) error {
	match, err := s.loadMatch(s.DB, c.Params("id"))
	if err != nil {
		return matchLoadError(c, err)
	}
	return c.JSON(fiber.Map{
		"match_id":       match.ID,
		"winning_points": match.WinningPoints,
		"total_scores":   engine.TotalScores(match),
		"active_players": engine.ActivePlayers(match),
		"standings":      engine.Standings(match),
		"losers":         match.Losers,
		"winner":         match.Winner,
		"is_active":      match.IsActive,
		"is_cancelled":   match.IsCancelled,
	})
}

// AddRound appends a predictions-only round. The response flags the
// under-total notice ("fiuuum") so the client can celebrate it.
func (s *MatchService) AddRound(c *fiber.Ctx) error {
	type Req struct {
		CardsPerPlayer int             `json:"cards_per_player"`
		Predictions    models.ScoreMap `json:"predictions"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	var round *models.Round
	var fiuuum bool
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		match, err := s.loadMatch(lockForUpdate(tx), c.Params("id"))
		if err != nil {
			return err
		}
		round, fiuuum, err = engine.AddRound(match, req.CardsPerPlayer, req.Predictions)
		if err != nil {
			return err
		}
		return tx.Create(round).Error
	})
	if err != nil {
		return mutationError(c, err, "failed to add round")
	}

	return c.Status(201).JSON(fiber.Map{
		"round":  round,
		"fiuuum": fiuuum,
	})
}

// UpdateRoundResults records a round's results exactly once, derives its
// scores and advances match progression, all atomically.
func (s *MatchService) UpdateRoundResults(c *fiber.Ctx) error {
	type Req struct {
		Results models.ScoreMap `json:"results"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	var match *models.Match
	var round *models.Round
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		match, err = s.loadMatch(lockForUpdate(tx), c.Params("id"))
		if err != nil {
			return err
		}
		round, err = engine.RecordResults(match, c.Params("round_id"), req.Results)
		if err != nil {
			return err
		}
		if err := tx.Save(round).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(match).Error
	})
	if err != nil {
		return mutationError(c, err, "failed to record results")
	}

	if !match.IsActive {
		log.Printf("🏁 Match %s completed, winner=%s", match.ID, match.Winner)
		s.afterCompletion(match)
	}

	return c.JSON(fiber.Map{
		"round":  round,
		"match":  match,
		"winner": match.Winner,
	})
}

// AddPlayer joins a player mid-match with the minimum active total as
// starting score.
func (s *MatchService) AddPlayer(c *fiber.Ctx) error {
	type Req struct {
		PlayerID string `json:"player_id"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	var match *models.Match
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		match, err = s.loadMatch(lockForUpdate(tx), c.Params("id"))
		if err != nil {
			return err
		}
		before := len(match.Rounds)
		if err := engine.AddPlayer(match, req.PlayerID); err != nil {
			return err
		}
		if len(match.Rounds) > before {
			if err := tx.Create(&match.Rounds[len(match.Rounds)-1]).Error; err != nil {
				return err
			}
		}
		return tx.Omit(clause.Associations).Save(match).Error
	})
	if err != nil {
		return mutationError(c, err, "failed to add player")
	}
	return c.JSON(match)
}

// CompleteMatch force-ends a match with whatever standings exist.
func (s *MatchService) CompleteMatch(c *fiber.Ctx) error {
	match, err := s.transition(c.Params("id"), engine.FinishMatch)
	if err != nil {
		return mutationError(c, err, "failed to complete match")
	}
	s.afterCompletion(match)
	return c.JSON(match)
}

// CancelMatch voids a match; it keeps its rounds but is excluded from all
// statistics.
func (s *MatchService) CancelMatch(c *fiber.Ctx) error {
	match, err := s.transition(c.Params("id"), engine.CancelMatch)
	if err != nil {
		return mutationError(c, err, "failed to cancel match")
	}
	go s.archiveSnapshot(match)
	return c.JSON(match)
}

// ArchiveMatch uploads a JSON snapshot of the aggregate to R2 on demand.
func (s *MatchService) ArchiveMatch(c *fiber.Ctx) error {
	if !utils.R2Enabled() {
		return c.Status(503).JSON(fiber.Map{"error": "archive storage is not configured"})
	}
	match, err := s.loadMatch(s.DB, c.Params("id"))
	if err != nil {
		return matchLoadError(c, err)
	}
	url, err := utils.UploadJSONToR2(match, archiveKey(match))
	if err != nil {
		log.Printf("ERROR archiving match %s: %v", match.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "archive upload failed"})
	}
	return c.JSON(fiber.Map{"message": "match archived", "url": url})
}

func (s *MatchService) transition(matchID string, op func(*models.Match) error) (*models.Match, error) {
	var match *models.Match
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		match, err = s.loadMatch(lockForUpdate(tx), matchID)
		if err != nil {
			return err
		}
		if err := op(match); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(match).Error
	})
	return match, err
}

// afterCompletion runs the best-effort side effects of a finished match:
// stats recompute and R2 snapshot. Failures are logged, never surfaced.
func (s *MatchService) afterCompletion(match *models.Match) {
	if s.Stats != nil {
		go func() {
			if err := s.Stats.RebuildAll(); err != nil {
				log.Printf("⚠️ Stats rebuild after match %s failed: %v", match.ID, err)
			}
		}()
	}
	go s.archiveSnapshot(match)
}

func (s *MatchService) archiveSnapshot(match *models.Match) {
	if !utils.R2Enabled() {
		return
	}
	url, err := utils.UploadJSONToR2(match, archiveKey(match))
	if err != nil {
		log.Printf("⚠️ Snapshot upload for match %s failed: %v", match.ID, err)
		return
	}
	log.Printf("✅ Match %s archived: %s", match.ID, url)
}

func archiveKey(match *models.Match) string {
	return fmt.Sprintf("matches/%s.json", match.ID)
}

func (s *MatchService) loadMatch(db *gorm.DB, id string) (*models.Match, error) {
	var match models.Match
	err := db.Preload("Rounds", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	}).First(&match, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// lockForUpdate serializes mutations per match row. SQLite (tests) already
// serializes writers, and its driver rejects FOR UPDATE.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func matchLoadError(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "match not found"})
	}
	log.Printf("ERROR loading match: %v", err)
	return c.Status(500).JSON(fiber.Map{"error": "DB error"})
}

// engineStatus maps the engine's error kinds onto HTTP statuses.
func engineStatus(err error) (int, string, bool) {
	var vErr *engine.ValidationError
	if errors.As(err, &vErr) {
		return 400, vErr.Reason, true
	}
	var rdErr *engine.InvalidRoundDataError
	if errors.As(err, &rdErr) {
		return 422, rdErr.Reason, true
	}
	switch {
	case errors.Is(err, engine.ErrInactiveMatch):
		return 409, "match is not active", true
	case errors.Is(err, engine.ErrDuplicatePlayer):
		return 409, "player already in match", true
	case errors.Is(err, engine.ErrRoundNotFound):
		return 404, "round not found", true
	}
	return 0, "", false
}

func engineError(c *fiber.Ctx, err error) error {
	if status, msg, ok := engineStatus(err); ok {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	log.Printf("ERROR in match operation: %v", err)
	return c.Status(500).JSON(fiber.Map{"error": "internal error"})
}

func mutationError(c *fiber.Ctx, err error, fallback string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "match not found"})
	}
	if status, msg, ok := engineStatus(err); ok {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	log.Printf("ERROR: %s: %v", fallback, err)
	return c.Status(500).JSON(fiber.Map{"error": fallback})
}
