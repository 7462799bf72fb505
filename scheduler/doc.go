// Package scheduler polls the triggers of registered jobs and dispatches
// the ones that are due.
//
// A [Scheduler] moves through NotStarted → Running ⇄ Paused → Stopped.
// Every poll interval it walks the registry in registration order. For each
// job with a trigger it loads the persisted [State], works out the due
// occurrence, and dispatches the job in line when it is due. A due time
// that fell further behind than the misfire threshold is a misfire; it is
// only run when the job opted into misfire handling.
//
// Dispatch is synchronous: a slow job delays the jobs after it in the same
// pass. State is written only after the dispatch returns.
package scheduler
