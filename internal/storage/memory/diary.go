package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/google/uuid"
)

type diaryStorage struct {
	mu       sync.RWMutex
	seq      int
	meals    map[string]*storedMeal    // key: meal id
	sessions map[string]*storedSession // key: session id
}

type storedMeal struct {
	seq  int
	meal storage.DiaryMeal
}

type storedSession struct {
	seq     int
	session storage.WorkoutSession
}

func newDiaryStorage() *diaryStorage {
	return &diaryStorage{
		meals:    make(map[string]*storedMeal),
		sessions: make(map[string]*storedSession),
	}
}

func (s *diaryStorage) CreateMealBatch(ctx context.Context, meal storage.DiaryMeal) (storage.DiaryMeal, error) {
	if err := ctx.Err(); err != nil {
		return storage.DiaryMeal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meal.ID = uuid.New().String()
	meal.CreatedAt = time.Now().UTC()
	meal.Items = cloneItems(meal.Items)
	for i := range meal.Items {
		meal.Items[i].ID = uuid.New().String()
		meal.Items[i].MealID = meal.ID
	}

	s.seq++
	s.meals[meal.ID] = &storedMeal{seq: s.seq, meal: meal}

	out := meal
	out.Items = cloneItems(meal.Items)
	return out, nil
}

func (s *diaryStorage) CreateWorkoutSession(ctx context.Context, session storage.WorkoutSession) (storage.WorkoutSession, error) {
	if err := ctx.Err(); err != nil {
		return storage.WorkoutSession{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session.ID = uuid.New().String()
	session.CreatedAt = time.Now().UTC()
	session.Sets = cloneSets(session.Sets)
	for i := range session.Sets {
		session.Sets[i].ID = uuid.New().String()
		session.Sets[i].SessionID = session.ID
	}

	s.seq++
	s.sessions[session.ID] = &storedSession{seq: s.seq, session: session}

	out := session
	out.Sets = cloneSets(session.Sets)
	return out, nil
}

func (s *diaryStorage) DeleteMeal(ctx context.Context, ownerUserID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.meals[id]
	if !ok || stored.meal.OwnerUserID != ownerUserID {
		return storage.ErrNotFound
	}
	delete(s.meals, id)
	return nil
}

func (s *diaryStorage) DeleteWorkoutSession(ctx context.Context, ownerUserID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok || stored.session.OwnerUserID != ownerUserID {
		return storage.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *diaryStorage) ListMeals(ctx context.Context, ownerUserID string, date string) ([]storage.DiaryMeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*storedMeal
	for _, stored := range s.meals {
		if stored.meal.OwnerUserID == ownerUserID && (date == "" || stored.meal.MealDate == date) {
			found = append(found, stored)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	meals := make([]storage.DiaryMeal, 0, len(found))
	for _, stored := range found {
		meal := stored.meal
		meal.Items = cloneItems(stored.meal.Items)
		meals = append(meals, meal)
	}
	return meals, nil
}

func (s *diaryStorage) ListWorkoutSessions(ctx context.Context, ownerUserID string, date string) ([]storage.WorkoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*storedSession
	for _, stored := range s.sessions {
		if stored.session.OwnerUserID == ownerUserID && (date == "" || stored.session.SessionDate == date) {
			found = append(found, stored)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	sessions := make([]storage.WorkoutSession, 0, len(found))
	for _, stored := range found {
		session := stored.session
		session.Sets = cloneSets(stored.session.Sets)
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func cloneItems(items []storage.DiaryMealItem) []storage.DiaryMealItem {
	out := make([]storage.DiaryMealItem, len(items))
	copy(out, items)
	return out
}

func cloneSets(sets []storage.WorkoutSet) []storage.WorkoutSet {
	out := make([]storage.WorkoutSet, len(sets))
	copy(out, sets)
	return out
}
