/*
Package context implements token-budget compression of conversation history.

Two reduction strategies compose into a fixed-order Chain: MiddleRemoval
preserves the oldest and newest messages and drops the middle oldest-first;
OldestRemoval is the fallback for histories too short for preserve windows
and removes from the absolute front. Both recount tokens after every removal
and are fully deterministic, which keeps compression output replayable for
identical history and budget.
*/
package context
