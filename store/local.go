package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"nosh/nutrition"
)

// Local is the on-device Store backed by BadgerDB. Records are JSON
// values under hierarchical keys:
//
//	u/<user>/meal/<id>
//	u/<user>/item/<id>
//	u/<user>/goals
//	u/<user>/imported
type Local struct {
	db *badger.DB
}

// LocalOptions configures the Local store.
type LocalOptions struct {
	// Dir is the badger data directory. Required unless InMemory is set.
	Dir string

	// InMemory runs badger without disk persistence, for tests.
	InMemory bool
}

type badgerSilenced struct{}

func (badgerSilenced) Errorf(string, ...any)   {}
func (badgerSilenced) Warningf(string, ...any) {}
func (badgerSilenced) Infof(string, ...any)    {}
func (badgerSilenced) Debugf(string, ...any)   {}

// OpenLocal opens (or creates) the local store.
func OpenLocal(opts LocalOptions) (*Local, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: LocalOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerSilenced{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &Local{db: db}, nil
}

func (l *Local) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func mealKey(user, id string) []byte { return []byte("u/" + user + "/meal/" + id) }
func itemKey(user, id string) []byte { return []byte("u/" + user + "/item/" + id) }
func goalsKey(user string) []byte    { return []byte("u/" + user + "/goals") }
func importKey(user string) []byte   { return []byte("u/" + user + "/imported") }

func (l *Local) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (l *Local) delete(key []byte) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

func (l *Local) InsertMeal(_ context.Context, user string, meal nutrition.MealGroup) error {
	return l.setJSON(mealKey(user, meal.ID), meal)
}

func (l *Local) DeleteMeal(_ context.Context, user, mealID string) error {
	return l.delete(mealKey(user, mealID))
}

func (l *Local) mutateMeal(user, mealID string, mutate func(*nutrition.MealGroup)) error {
	key := mealKey(user, mealID)
	err := l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var meal nutrition.MealGroup
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meal)
		}); err != nil {
			return fmt.Errorf("decode meal %s: %w", mealID, err)
		}
		mutate(&meal)
		data, err := json.Marshal(meal)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

func (l *Local) UpdateMealTranscript(_ context.Context, user, mealID, transcript string) error {
	return l.mutateMeal(user, mealID, func(m *nutrition.MealGroup) {
		m.Transcript = transcript
	})
}

func (l *Local) SetMealPending(_ context.Context, user, mealID string, pending bool) error {
	return l.mutateMeal(user, mealID, func(m *nutrition.MealGroup) {
		m.Pending = pending
	})
}

func (l *Local) InsertItem(_ context.Context, user string, item nutrition.FoodItem) error {
	return l.setJSON(itemKey(user, item.ID), item)
}

func (l *Local) UpdateItem(_ context.Context, user string, item nutrition.FoodItem) error {
	key := itemKey(user, item.ID)
	err := l.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

func (l *Local) DeleteItem(_ context.Context, user, itemID string) error {
	return l.delete(itemKey(user, itemID))
}

// listJSON decodes every value under prefix into out, which must be a
// pointer passed per entry via decode.
func (l *Local) listPrefix(prefix []byte, decode func([]byte) error) error {
	return l.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(decode); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Local) Meals(_ context.Context, user string) ([]nutrition.MealGroup, error) {
	var meals []nutrition.MealGroup
	err := l.listPrefix([]byte("u/"+user+"/meal/"), func(val []byte) error {
		var m nutrition.MealGroup
		if err := json.Unmarshal(val, &m); err != nil {
			return fmt.Errorf("decode meal: %w", err)
		}
		meals = append(meals, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortMeals(meals)
	return meals, nil
}

func (l *Local) Items(_ context.Context, user string) ([]nutrition.FoodItem, error) {
	var items []nutrition.FoodItem
	err := l.listPrefix([]byte("u/"+user+"/item/"), func(val []byte) error {
		var it nutrition.FoodItem
		if err := json.Unmarshal(val, &it); err != nil {
			return fmt.Errorf("decode item: %w", err)
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortItems(items)
	return items, nil
}

func (l *Local) Goals(_ context.Context, user string) (*nutrition.Goals, error) {
	var g nutrition.Goals
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(goalsKey(user))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &g)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (l *Local) SetGoals(_ context.Context, user string, g nutrition.Goals) error {
	return l.setJSON(goalsKey(user), g)
}

func (l *Local) ImportSnapshot(ctx context.Context, user string, snap Snapshot) error {
	for _, m := range snap.Meals {
		if err := l.InsertMeal(ctx, user, m); err != nil {
			return err
		}
	}
	for _, it := range snap.Items {
		if err := l.InsertItem(ctx, user, it); err != nil {
			return err
		}
	}
	if snap.Goals != nil {
		return l.SetGoals(ctx, user, *snap.Goals)
	}
	return nil
}

// Snapshot dumps everything stored for user.
func (l *Local) Snapshot(ctx context.Context, user string) (Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.Meals, err = l.Meals(ctx, user); err != nil {
		return Snapshot{}, err
	}
	if snap.Items, err = l.Items(ctx, user); err != nil {
		return Snapshot{}, err
	}
	snap.Goals, err = l.Goals(ctx, user)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Snapshot{}, err
	}
	return snap, nil
}

// ImportMarker reports whether the one-shot migration already ran for
// user, and where it went.
func (l *Local) ImportMarker(_ context.Context, user string) (string, bool, error) {
	var dest string
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(importKey(user))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			dest = strings.TrimSpace(string(val))
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return dest, true, nil
}

func (l *Local) SetImportMarker(_ context.Context, user, dest string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(importKey(user), []byte(dest))
	})
}

func sortMeals(meals []nutrition.MealGroup) {
	sortByTime(meals, func(m nutrition.MealGroup) time.Time { return m.CreatedAt })
}

func sortItems(items []nutrition.FoodItem) {
	sortByTime(items, func(it nutrition.FoodItem) time.Time { return it.LoggedAt })
}
