package services

import (
	"context"
	"sort"

	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
)

const (
	ScoresCollection = "scores"
	MatchDocumentID  = "match"
)

// ScoreService streams the live match document.
type ScoreService struct {
	store docstore.Store
	log   logger.Logger
}

func NewScoreService(store docstore.Store, log logger.Logger) *ScoreService {
	return &ScoreService{store: store, log: log}
}

// Watch calls fn with the current score and again on every change until the
// subscription is closed or ctx ends. A missing document renders nothing.
func (s *ScoreService) Watch(ctx context.Context, fn func(models.ScoreView)) (*docstore.Subscription, error) {
	return s.store.Subscribe(ctx, ScoresCollection, MatchDocumentID, func(doc docstore.Document, err error) {
		if err != nil {
			s.log.Error("score snapshot failed", err)
			return
		}
		if doc == nil {
			return
		}
		var m models.Match
		if err := doc.DataTo(&m); err != nil {
			s.log.Error("decode score document failed", err)
			return
		}
		fn(RenderScore(m))
	})
}

// RenderScore turns the match document into a frame. Player tables are sorted
// by runs, highest first, without touching m.
func RenderScore(m models.Match) models.ScoreView {
	if !m.Live {
		return models.ScoreView{Status: models.StatusMatchNotLive}
	}
	return models.ScoreView{
		Status: models.StatusMatchLive,
		Live:   true,
		ScoreBoard: &models.ScoreBoard{
			Team1:          m.Team1,
			Team2:          m.Team2,
			BattingTeam:    m.BattingTeam,
			BestPlayer:     m.BestPlayer,
			RunsTeam1:      m.RunsTeam1,
			RunsTeam2:      m.RunsTeam2,
			Overs:          m.Overs,
			RemainingOvers: m.RemainingOvers,
			CurrentBatter:  m.CurrentBatter,
			Team1Players:   sortedByRuns(m.Team1Players),
			Team2Players:   sortedByRuns(m.Team2Players),
		},
	}
}

func sortedByRuns(players []models.Player) []models.Player {
	out := make([]models.Player, len(players))
	copy(out, players)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Runs > out[j].Runs
	})
	return out
}
