package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"nosh/nutrition"
)

func openTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := OpenLocal(LocalOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLocalMealMutations(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := l.InsertMeal(ctx, testUser, testMeal("m1", now)); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}
	if err := l.UpdateMealTranscript(ctx, testUser, "m1", "toast and eggs"); err != nil {
		t.Fatalf("UpdateMealTranscript: %v", err)
	}
	if err := l.SetMealPending(ctx, testUser, "m1", false); err != nil {
		t.Fatalf("SetMealPending: %v", err)
	}

	meals, err := l.Meals(ctx, testUser)
	if err != nil {
		t.Fatalf("Meals: %v", err)
	}
	if len(meals) != 1 {
		t.Fatalf("meals = %d, want 1", len(meals))
	}
	if meals[0].Transcript != "toast and eggs" || meals[0].Pending {
		t.Errorf("meal = %+v after updates", meals[0])
	}

	if err := l.UpdateMealTranscript(ctx, testUser, "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing meal update = %v, want ErrNotFound", err)
	}
}

func TestLocalListOrder(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// Key order (m2 < m9) must not leak into list order.
	if err := l.InsertMeal(ctx, testUser, testMeal("m9", base)); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}
	if err := l.InsertMeal(ctx, testUser, testMeal("m2", base.Add(time.Minute))); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}

	meals, err := l.Meals(ctx, testUser)
	if err != nil {
		t.Fatalf("Meals: %v", err)
	}
	if len(meals) != 2 || meals[0].ID != "m9" || meals[1].ID != "m2" {
		t.Errorf("meal order = %v, want creation order", []string{meals[0].ID, meals[1].ID})
	}
}

func TestLocalItemDelete(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := l.InsertItem(ctx, testUser, testItem("i1", "m1", now)); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := l.DeleteItem(ctx, testUser, "i1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if err := l.DeleteItem(ctx, testUser, "i1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteItem = %v, want ErrNotFound", err)
	}
}

func TestLocalSnapshot(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := l.InsertMeal(ctx, testUser, testMeal("m1", now)); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}
	if err := l.InsertItem(ctx, testUser, testItem("i1", "m1", now)); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := l.SetGoals(ctx, testUser, nutrition.Goals{Calories: 2200}); err != nil {
		t.Fatalf("SetGoals: %v", err)
	}
	// Another user's data stays out of the snapshot.
	if err := l.InsertMeal(ctx, "other", testMeal("m2", now)); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}

	snap, err := l.Snapshot(ctx, testUser)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Meals) != 1 || len(snap.Items) != 1 {
		t.Errorf("snapshot = %d meals, %d items, want 1 and 1", len(snap.Meals), len(snap.Items))
	}
	if snap.Goals == nil || snap.Goals.Calories != 2200 {
		t.Errorf("snapshot goals = %+v", snap.Goals)
	}
}

func TestLocalSnapshotWithoutGoals(t *testing.T) {
	l := openTestLocal(t)
	snap, err := l.Snapshot(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Goals != nil {
		t.Errorf("goals = %+v, want nil when never set", snap.Goals)
	}
}

func TestLocalImportMarker(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()

	if _, done, err := l.ImportMarker(ctx, testUser); err != nil || done {
		t.Fatalf("fresh marker = done=%v, err=%v", done, err)
	}
	if err := l.SetImportMarker(ctx, testUser, "sqlite"); err != nil {
		t.Fatalf("SetImportMarker: %v", err)
	}
	dest, done, err := l.ImportMarker(ctx, testUser)
	if err != nil {
		t.Fatalf("ImportMarker: %v", err)
	}
	if !done || dest != "sqlite" {
		t.Errorf("marker = %q done=%v, want sqlite/true", dest, done)
	}
}
