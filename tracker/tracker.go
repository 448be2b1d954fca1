// Package tracker keeps the in-memory view of meals and food items
// consistent with an in-flight recording and with the persistence
// collaborator, under optimistic-update discipline: every mutation is
// applied locally first, then persisted, and rolled back locally when the
// store rejects it.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nosh/log"
	"nosh/nutrition"
	"nosh/store"
)

var (
	ErrUnknownMeal = errors.New("tracker: unknown meal")
	ErrUnknownItem = errors.New("tracker: unknown item")
)

// Tracker owns the local meal/item collections for one user. The mutex
// is held across store calls so that a check and its mutation stay atomic
// with respect to other operations; double-start and mid-rollback reads
// are impossible by construction.
type Tracker struct {
	mu    sync.Mutex
	st    store.Store
	user  string
	meals map[string]nutrition.MealGroup
	items map[string]nutrition.FoodItem

	// activeMeal is the meal of the recording in progress; it is exempt
	// from orphan pruning until the recording closes.
	activeMeal string

	now   func() time.Time
	newID func() string
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDs overrides identifier generation (used in tests).
func WithIDs(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

func New(st store.Store, user string, opts ...Option) *Tracker {
	t := &Tracker{
		st:    st,
		user:  user,
		meals: make(map[string]nutrition.MealGroup),
		items: make(map[string]nutrition.FoodItem),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load replaces local state with the store's contents. Items referencing
// a meal the store does not know get a placeholder meal synthesized from
// the item's own timestamp; mixed-origin data must never be dropped.
func (t *Tracker) Load(ctx context.Context) error {
	meals, err := t.st.Meals(ctx, t.user)
	if err != nil {
		return fmt.Errorf("load meals: %w", err)
	}
	items, err := t.st.Items(ctx, t.user)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.meals = make(map[string]nutrition.MealGroup, len(meals))
	t.items = make(map[string]nutrition.FoodItem, len(items))
	for _, m := range meals {
		t.meals[m.ID] = m
	}
	for _, it := range items {
		if _, ok := t.meals[it.MealID]; !ok {
			log.Warnf("item %s references unknown meal %s, synthesizing placeholder", it.ID, it.MealID)
			t.meals[it.MealID] = nutrition.MealGroup{
				ID:        it.MealID,
				Label:     mealLabel(it.LoggedAt),
				CreatedAt: it.LoggedAt,
			}
		}
		t.items[it.ID] = it
	}

	t.pruneLocked(ctx)
	return nil
}

// Meals returns the local meals in creation order.
func (t *Tracker) Meals() []nutrition.MealGroup {
	t.mu.Lock()
	defer t.mu.Unlock()
	meals := make([]nutrition.MealGroup, 0, len(t.meals))
	for _, m := range t.meals {
		meals = append(meals, m)
	}
	sortByTime(meals, func(m nutrition.MealGroup) time.Time { return m.CreatedAt })
	return meals
}

// Items returns the local items in logging order.
func (t *Tracker) Items() []nutrition.FoodItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	items := make([]nutrition.FoodItem, 0, len(t.items))
	for _, it := range t.items {
		items = append(items, it)
	}
	sortByTime(items, func(it nutrition.FoodItem) time.Time { return it.LoggedAt })
	return items
}

// MealItems returns the items attached to one meal, in logging order.
func (t *Tracker) MealItems(mealID string) []nutrition.FoodItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	var items []nutrition.FoodItem
	for _, it := range t.items {
		if it.MealID == mealID {
			items = append(items, it)
		}
	}
	sortByTime(items, func(it nutrition.FoodItem) time.Time { return it.LoggedAt })
	return items
}

// StartRecording creates the meal for a new recording session and marks
// it active. The insert is optimistic: a store failure rolls the meal
// back out of local state and aborts the start.
func (t *Tracker) StartRecording(ctx context.Context) (nutrition.MealGroup, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	meal := nutrition.MealGroup{
		ID:        t.newID(),
		Label:     mealLabel(now),
		CreatedAt: now,
		Pending:   true,
	}
	t.meals[meal.ID] = meal
	t.activeMeal = meal.ID

	if err := t.st.InsertMeal(ctx, t.user, meal); err != nil {
		delete(t.meals, meal.ID)
		t.activeMeal = ""
		return nutrition.MealGroup{}, fmt.Errorf("insert meal: %w", err)
	}
	return meal, nil
}

// AttachEntry binds an extracted entry to mealID as a new item. The meal
// is created lazily when local state does not have it (food can arrive
// before the meal-create insert resolved). A store failure rolls back the
// item, and the meal too when it was created for this item alone;
// already-committed items are untouched.
func (t *Tracker) AttachEntry(ctx context.Context, mealID string, entry nutrition.FoodEntry) (nutrition.FoodItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	createdMeal := false
	if _, ok := t.meals[mealID]; !ok {
		meal := nutrition.MealGroup{
			ID:        mealID,
			Label:     mealLabel(now),
			CreatedAt: now,
			Pending:   true,
		}
		t.meals[mealID] = meal
		createdMeal = true
		if err := t.st.InsertMeal(ctx, t.user, meal); err != nil {
			delete(t.meals, mealID)
			return nutrition.FoodItem{}, fmt.Errorf("insert meal: %w", err)
		}
	}

	item := nutrition.FoodItem{
		FoodEntry: entry,
		ID:        t.newID(),
		MealID:    mealID,
		LoggedAt:  now,
	}
	t.items[item.ID] = item

	if err := t.st.InsertItem(ctx, t.user, item); err != nil {
		delete(t.items, item.ID)
		if createdMeal {
			delete(t.meals, mealID)
			if derr := t.st.DeleteMeal(ctx, t.user, mealID); derr != nil {
				log.StoreError("delete meal after item rollback", derr)
			}
		}
		return nutrition.FoodItem{}, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

// UpdateTranscript patches the meal's transcript snippet. This is
// best-effort metadata: a store failure is logged, never surfaced, and
// the local value stands.
func (t *Tracker) UpdateTranscript(ctx context.Context, mealID, transcript string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	meal, ok := t.meals[mealID]
	if !ok {
		return
	}
	meal.Transcript = nutrition.Snippet(transcript)
	t.meals[mealID] = meal

	if err := t.st.UpdateMealTranscript(ctx, t.user, mealID, meal.Transcript); err != nil {
		log.StoreError("update transcript", err)
	}
}

// CloseRecording ends the session for mealID. A meal that gathered no
// items is pruned from local state and the store; otherwise its pending
// flag is cleared. Clearing failure rolls the flag back and surfaces the
// error.
func (t *Tracker) CloseRecording(ctx context.Context, mealID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.activeMeal == mealID {
		t.activeMeal = ""
	}
	meal, ok := t.meals[mealID]
	if !ok {
		return nil
	}

	if !t.mealReferencedLocked(mealID) {
		t.deleteMealLocked(ctx, mealID)
		return nil
	}

	if !meal.Pending {
		return nil
	}
	meal.Pending = false
	t.meals[mealID] = meal
	if err := t.st.SetMealPending(ctx, t.user, mealID, false); err != nil {
		meal.Pending = true
		t.meals[mealID] = meal
		return fmt.Errorf("clear pending: %w", err)
	}
	return nil
}

// PruneOrphans drops every meal no item references, except the active
// recording meal. Deletions are mirrored to the store best-effort; local
// state must never accumulate orphan meals from prior aborted sessions.
func (t *Tracker) PruneOrphans(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(ctx)
}

func (t *Tracker) pruneLocked(ctx context.Context) {
	for id := range t.meals {
		if id == t.activeMeal || t.mealReferencedLocked(id) {
			continue
		}
		t.deleteMealLocked(ctx, id)
	}
}

func (t *Tracker) mealReferencedLocked(mealID string) bool {
	for _, it := range t.items {
		if it.MealID == mealID {
			return true
		}
	}
	return false
}

// deleteMealLocked removes the meal locally and mirrors the deletion to
// the store. The store delete is best-effort: restoring an empty meal on
// failure would recreate the orphan the prune exists to remove.
func (t *Tracker) deleteMealLocked(ctx context.Context, mealID string) {
	delete(t.meals, mealID)
	if err := t.st.DeleteMeal(ctx, t.user, mealID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.StoreError("prune meal", err)
	}
}

// EditQuantity rescales an item's nutrients proportionally to the new
// quantity, optimistically.
func (t *Tracker) EditQuantity(ctx context.Context, itemID, newQuantity string) (nutrition.FoodItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.items[itemID]
	if !ok {
		return nutrition.FoodItem{}, ErrUnknownItem
	}
	item := prev
	nutrition.Rescale(&item.FoodEntry, newQuantity)
	t.items[itemID] = item

	if err := t.st.UpdateItem(ctx, t.user, item); err != nil {
		t.items[itemID] = prev
		return nutrition.FoodItem{}, fmt.Errorf("update item: %w", err)
	}
	return item, nil
}

// MoveItem reattaches an item to another meal, optimistically. The
// source meal is pruned afterwards if the move emptied it.
func (t *Tracker) MoveItem(ctx context.Context, itemID, toMealID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.items[itemID]
	if !ok {
		return ErrUnknownItem
	}
	if _, ok := t.meals[toMealID]; !ok {
		return ErrUnknownMeal
	}
	item := prev
	item.MealID = toMealID
	t.items[itemID] = item

	if err := t.st.UpdateItem(ctx, t.user, item); err != nil {
		t.items[itemID] = prev
		return fmt.Errorf("update item: %w", err)
	}
	t.pruneLocked(ctx)
	return nil
}

// DeleteItem removes an item, optimistically, then prunes its meal if
// nothing else references it.
func (t *Tracker) DeleteItem(ctx context.Context, itemID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.items[itemID]
	if !ok {
		return ErrUnknownItem
	}
	delete(t.items, itemID)

	if err := t.st.DeleteItem(ctx, t.user, itemID); err != nil {
		t.items[itemID] = prev
		return fmt.Errorf("delete item: %w", err)
	}
	t.pruneLocked(ctx)
	return nil
}

// Goals reads the per-user goals record from the store.
func (t *Tracker) Goals(ctx context.Context) (*nutrition.Goals, error) {
	return t.st.Goals(ctx, t.user)
}

// SetGoals writes the per-user goals record.
func (t *Tracker) SetGoals(ctx context.Context, g nutrition.Goals) error {
	return t.st.SetGoals(ctx, t.user, g)
}

func mealLabel(at time.Time) string {
	switch h := at.Hour(); {
	case h >= 5 && h < 11:
		return "Breakfast"
	case h >= 11 && h < 15:
		return "Lunch"
	case h >= 15 && h < 18:
		return "Snack"
	case h >= 18 && h < 23:
		return "Dinner"
	default:
		return "Late snack"
	}
}

func sortByTime[T any](s []T, at func(T) time.Time) {
	sort.SliceStable(s, func(i, j int) bool { return at(s[i]).Before(at(s[j])) })
}
