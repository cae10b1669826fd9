// Package trigger fires an action at each upcoming prayer time.
//
// A Scheduler holds at most one live timer. When it fires, the action runs,
// the next event is resolved from the clock's current time and a new timer
// is armed, so the loop never accumulates drift. After the last event of a
// day the scheduler asks its Source for the following day's schedule.
// Nothing is persisted; callers re-arm on restart.
package trigger
