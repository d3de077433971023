/*
Package runner drives one report run per network end to end.

A run loads the network's tracker, resolves its ignore list, streams the
report through the extractor in batches into a reconciliation run, rebuilds
node coverage, aggregates the run summary and saves the new tracker in one
store transaction:

	Load → ignore rules → extract (batched) → reconcile → coverage → summary → Save

Nothing is written until the final Save, so any error leaves the stored
tracker as it was. Recoverable problems are collected as warnings on the
Output and logged; only a corrupt tracker or a store failure aborts a run.

RunAll runs many networks concurrently with a bounded worker count. Runs for
the same network are serialized.
*/
package runner
