// Package checkpoint persists sync progress between runs.
//
// A checkpoint is a small JSON document at <state_dir>/checkpoint.json. [Store.Save] writes a
// temporary file in the same directory and renames it over the previous snapshot, so readers
// see either the old or the new checkpoint and never a partial one.
//
// [Store.Load] treats a missing, unparseable or unknown-version file as "no progress" and logs a
// warning for the latter two. Only an unreadable path is an error.
//
// [Store.Lock] takes an advisory lock on <state_dir>/cv2mylar.lock so two runs cannot
// share a state directory. Dry runs keep their progress in [DryRunFileName].
package checkpoint
