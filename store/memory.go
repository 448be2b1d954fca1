package store

import (
	"context"
	"sync"

	"nosh/nutrition"
)

// Memory is an in-memory Store for tests. FailNext makes the next
// mutating call return the given error, for exercising rollback paths.
type Memory struct {
	mu       sync.Mutex
	meals    map[string]map[string]nutrition.MealGroup
	items    map[string]map[string]nutrition.FoodItem
	goals    map[string]nutrition.Goals
	nextErr  error
	MutCalls int
}

func NewMemory() *Memory {
	return &Memory{
		meals: make(map[string]map[string]nutrition.MealGroup),
		items: make(map[string]map[string]nutrition.FoodItem),
		goals: make(map[string]nutrition.Goals),
	}
}

// FailNext arms the next mutating operation to fail with err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

// takeErr consumes the armed error, counting the mutation either way.
// Callers must hold mu.
func (m *Memory) takeErr() error {
	m.MutCalls++
	err := m.nextErr
	m.nextErr = nil
	return err
}

func (m *Memory) userMeals(user string) map[string]nutrition.MealGroup {
	if m.meals[user] == nil {
		m.meals[user] = make(map[string]nutrition.MealGroup)
	}
	return m.meals[user]
}

func (m *Memory) userItems(user string) map[string]nutrition.FoodItem {
	if m.items[user] == nil {
		m.items[user] = make(map[string]nutrition.FoodItem)
	}
	return m.items[user]
}

func (m *Memory) InsertMeal(_ context.Context, user string, meal nutrition.MealGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	m.userMeals(user)[meal.ID] = meal
	return nil
}

func (m *Memory) DeleteMeal(_ context.Context, user, mealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	meals := m.userMeals(user)
	if _, ok := meals[mealID]; !ok {
		return ErrNotFound
	}
	delete(meals, mealID)
	for id, it := range m.userItems(user) {
		if it.MealID == mealID {
			delete(m.userItems(user), id)
		}
	}
	return nil
}

func (m *Memory) UpdateMealTranscript(_ context.Context, user, mealID, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	meal, ok := m.userMeals(user)[mealID]
	if !ok {
		return ErrNotFound
	}
	meal.Transcript = transcript
	m.userMeals(user)[mealID] = meal
	return nil
}

func (m *Memory) SetMealPending(_ context.Context, user, mealID string, pending bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	meal, ok := m.userMeals(user)[mealID]
	if !ok {
		return ErrNotFound
	}
	meal.Pending = pending
	m.userMeals(user)[mealID] = meal
	return nil
}

func (m *Memory) InsertItem(_ context.Context, user string, item nutrition.FoodItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	m.userItems(user)[item.ID] = item
	return nil
}

func (m *Memory) UpdateItem(_ context.Context, user string, item nutrition.FoodItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	if _, ok := m.userItems(user)[item.ID]; !ok {
		return ErrNotFound
	}
	m.userItems(user)[item.ID] = item
	return nil
}

func (m *Memory) DeleteItem(_ context.Context, user, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	if _, ok := m.userItems(user)[itemID]; !ok {
		return ErrNotFound
	}
	delete(m.userItems(user), itemID)
	return nil
}

func (m *Memory) Meals(_ context.Context, user string) ([]nutrition.MealGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meals := make([]nutrition.MealGroup, 0, len(m.meals[user]))
	for _, meal := range m.meals[user] {
		meals = append(meals, meal)
	}
	sortMeals(meals)
	return meals, nil
}

func (m *Memory) Items(_ context.Context, user string) ([]nutrition.FoodItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]nutrition.FoodItem, 0, len(m.items[user]))
	for _, it := range m.items[user] {
		items = append(items, it)
	}
	sortItems(items)
	return items, nil
}

func (m *Memory) Goals(_ context.Context, user string) (*nutrition.Goals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[user]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *Memory) SetGoals(_ context.Context, user string, g nutrition.Goals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	m.goals[user] = g
	return nil
}

func (m *Memory) ImportSnapshot(_ context.Context, user string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	for _, meal := range snap.Meals {
		m.userMeals(user)[meal.ID] = meal
	}
	for _, it := range snap.Items {
		m.userItems(user)[it.ID] = it
	}
	if snap.Goals != nil {
		m.goals[user] = *snap.Goals
	}
	return nil
}

func (m *Memory) Close() error { return nil }
