// Package locale provides the locale State Store for localectl.
//
// A locale is a named controllable location (a room, a porch, a garden
// circuit) with an on/off status. The store holds the local mirror of the
// controller's locales and is the only place that status is changed.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          State Store                          │
//	│                                                               │
//	│  ┌──────────────────┐   ┌──────────────────┐                  │
//	│  │      Store       │   │      Merge       │                  │
//	│  │   (store.go)     │──▶│   (merge.go)     │                  │
//	│  │ • RWMutex        │   │ • first match    │                  │
//	│  │ • change events  │   │ • normalisation  │                  │
//	│  └──────────────────┘   └──────────────────┘                  │
//	│           │                                                   │
//	└───────────│───────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐   ┌──────────────────────┐
//	│  Storage (cache)     │   │  History (SQLite)    │
//	│  local.json          │   │  locale_history      │
//	└──────────────────────┘   └──────────────────────┘
//
// # Invariants
//
//   - The locale set is fixed once the cache is loaded. Merging a locale
//     the store does not know is a lookup miss, never an insert.
//   - Names are unique. Duplicate rows in a loaded cache are dropped.
//   - Status is always "on", "off" or the "unknown" sentinel. A raw value
//     reported by the controller is never stored verbatim.
//
// # Usage
//
//	store := locale.NewStore(locale.NewFileStorage("data/local.json"))
//	store.SetLogger(log)
//	if err := store.Load(ctx); err != nil {
//	    return err
//	}
//
//	res := store.Merge(locale.Locale{Name: "kitchen", Status: "On"}, locale.SourceCommand)
//	if res.Outcome == locale.OutcomeInvalidStatus {
//	    // controller sent something other than on/off
//	}
//
// # Thread Safety
//
// Store is safe for concurrent use. Readers and writers share one lock, so a
// multi-row MergeAll is never observed half applied.
package locale
