package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/models"
)

const DirectoryPageSize = 50

// ErrSuperseded is returned to a search that finished after a newer search
// from the same viewer had started.
var ErrSuperseded = errors.New("search superseded by a newer request")

type UserCard struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	AboutMe        string `json:"aboutMe"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type UserDetail struct {
	UserCard
	Email string `json:"email"`
}

type SearchResult struct {
	Token uint64     `json:"token"`
	Users []UserCard `json:"users"`
}

type inflightSearch struct {
	token  uint64
	cancel context.CancelFunc
}

// DirectoryService lists and searches other users' profiles.
type DirectoryService struct {
	store docstore.Store

	mu       sync.Mutex
	next     uint64
	inflight map[string]inflightSearch
}

func NewDirectoryService(store docstore.Store) *DirectoryService {
	return &DirectoryService{
		store:    store,
		inflight: make(map[string]inflightSearch),
	}
}

// LoadPage returns up to DirectoryPageSize users ordered by first name,
// without the viewer.
func (s *DirectoryService) LoadPage(ctx context.Context, viewerID string) ([]UserCard, error) {
	docs, err := s.store.Query(ctx, UsersCollection, "firstName", DirectoryPageSize)
	if err != nil {
		searchesTotal.WithLabelValues("page", "error").Inc()
		return nil, err
	}
	cards, err := cardsExcept(docs, viewerID, nil)
	if err != nil {
		searchesTotal.WithLabelValues("page", "error").Inc()
		return nil, err
	}
	searchesTotal.WithLabelValues("page", "ok").Inc()
	return cards, nil
}

// Search filters the whole collection on a case-insensitive substring of
// firstName, lastName or email. An empty term is a page load. Starting a
// search cancels the viewer's previous one.
func (s *DirectoryService) Search(ctx context.Context, viewerID, term string) (*SearchResult, error) {
	ctx, token := s.begin(ctx, viewerID)
	defer s.end(viewerID, token)

	var (
		users []UserCard
		err   error
	)
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		users, err = s.LoadPage(ctx, viewerID)
	} else {
		users, err = s.search(ctx, viewerID, needle)
	}

	if !s.latest(viewerID, token) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return &SearchResult{Token: token, Users: users}, nil
}

func (s *DirectoryService) search(ctx context.Context, viewerID, needle string) ([]UserCard, error) {
	docs, err := s.store.QueryAll(ctx, UsersCollection)
	if err != nil {
		searchesTotal.WithLabelValues("search", "error").Inc()
		return nil, err
	}
	cards, err := cardsExcept(docs, viewerID, func(p *models.Profile) bool {
		return strings.Contains(strings.ToLower(p.FirstName), needle) ||
			strings.Contains(strings.ToLower(p.LastName), needle) ||
			strings.Contains(strings.ToLower(p.Email), needle)
	})
	if err != nil {
		searchesTotal.WithLabelValues("search", "error").Inc()
		return nil, err
	}
	searchesTotal.WithLabelValues("search", "ok").Inc()
	return cards, nil
}

// Detail returns the read-only view of another user.
func (s *DirectoryService) Detail(ctx context.Context, userID string) (*UserDetail, error) {
	doc, err := s.store.Get(ctx, UsersCollection, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	p, err := decodeProfile(doc)
	if err != nil {
		return nil, err
	}
	email := p.Email
	if email == "" {
		email = models.NoEmailPlaceholder
	}
	return &UserDetail{UserCard: newUserCard(p), Email: email}, nil
}

func (s *DirectoryService) begin(ctx context.Context, viewerID string) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.inflight[viewerID]; ok {
		prev.cancel()
	}
	s.next++
	s.inflight[viewerID] = inflightSearch{token: s.next, cancel: cancel}
	return ctx, s.next
}

func (s *DirectoryService) latest(viewerID string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.inflight[viewerID]
	return ok && cur.token == token
}

func (s *DirectoryService) end(viewerID string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.inflight[viewerID]
	if !ok || cur.token != token {
		return
	}
	cur.cancel()
	delete(s.inflight, viewerID)
}

func cardsExcept(docs []docstore.Document, viewerID string, keep func(*models.Profile) bool) ([]UserCard, error) {
	cards := make([]UserCard, 0, len(docs))
	for _, doc := range docs {
		if doc.ID() == viewerID {
			continue
		}
		p, err := decodeProfile(doc)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(p) {
			continue
		}
		cards = append(cards, newUserCard(p))
	}
	return cards, nil
}

func newUserCard(p *models.Profile) UserCard {
	return UserCard{
		ID:             p.ID,
		DisplayName:    p.DisplayName(),
		AboutMe:        p.AboutMeText(),
		ProfilePicture: p.ProfilePicture,
	}
}
