// Package scheduler keeps the locale store fresh by polling the controller
// with get_all in the background.
//
// Lifecycle:
//
//	        Configure / Start
//	Idle ─────────────────────▶ Polling ──┐
//	  ▲                           │       │ Configure / Start
//	  └──── Stop / Close / ctx ───┘  ◀────┘ (old worker joined first)
//
// Each worker owns a dedicated UDP connection, separate from the one used
// for on-demand commands. Results flow from the poll goroutine to the apply
// goroutine through a one-slot channel; if observers fall behind, only the
// newest table is kept.
package scheduler
