// Package submitter embeds chunks in fixed-size batches and adds them to the
// vector store.
//
// Each batch is one embedding call followed by one atomic store Add. A batch
// that fails at either step is recorded and skipped; the remaining batches
// still run. After all batches are attempted the store is counted and any
// shortfall against the expected total is reported, not returned as an error.
package submitter
