package localstate

import (
	"strconv"
	"time"
)

const (
	languageKey    = "language"
	themeKey       = "theme"
	visitKeyPrefix = "visits:"
)

// Language returns the persisted language preference, empty when unset.
func Language(store *Store) string {
	value, _ := store.Get(languageKey)
	return value
}

// SetLanguage persists the language preference.
func SetLanguage(store *Store, language string) error {
	return store.Set(languageKey, language)
}

// Theme returns the persisted theme preference, empty when unset.
func Theme(store *Store) string {
	value, _ := store.Get(themeKey)
	return value
}

// SetTheme persists the theme preference.
func SetTheme(store *Store, theme string) error {
	return store.Set(themeKey, theme)
}

// RecordVisit increments the visit counter for the calendar day of now and
// returns the updated count.
func RecordVisit(store *Store, now time.Time) (int, error) {
	key := visitKeyPrefix + now.Format("2006-01-02")
	count := 0
	if raw, ok := store.Get(key); ok {
		parsed, err := strconv.Atoi(raw)
		if err == nil {
			count = parsed
		}
	}
	count++
	if err := store.Set(key, strconv.Itoa(count)); err != nil {
		return 0, err
	}
	return count, nil
}

// VisitCount reports the recorded visits for the calendar day of now.
func VisitCount(store *Store, now time.Time) int {
	raw, ok := store.Get(visitKeyPrefix + now.Format("2006-01-02"))
	if !ok {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
