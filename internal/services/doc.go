// Package services implements the two catalogs a sync talks to and the limits that guard them.
//
// # Reference catalog
//
// [ComicVineService] implements [ReferenceCatalog]. Volumes are discovered per character from its
// volume credits, then optionally through the issues endpoint filtered by character credit,
// paged 100 issues at a time and deduplicated per page.
// Volume details are cached for the life of the process.
//
// Every logical request consumes one unit of the [QueryBudget] and then waits on the
// [RateLimiter]. Timeouts, connection failures, 429 and 5xx responses are retried with
// exponential backoff; retries of one request do not consume more budget.
//
// # Target catalog
//
// [MylarService] implements [TargetCatalog] against Mylar's API (cmd=getIndex and cmd=addComic).
//
// # Error Handling
//
// Services wrap the sentinels from the shared package:
//   - [shared.ErrAuth] : rejected credentials, never retried
//   - [shared.ErrTransientFetch] : retries exhausted
//   - [shared.ErrFetch] : permanent request failure
//   - [shared.ErrBudgetExceeded] : no queries left for this run
//   - [shared.ErrTargetWrite] : an add was rejected
//   - [shared.ErrConflict] : the target already tracks the series
package services
