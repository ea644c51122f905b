// Package pdfledger is the Composition Root for the pdfledger application.
//
// It connects the label ledger (identity resolution, reconciliation and
// decision fusion) with the storage adapters using the Hexagonal
// Architecture pattern.
//
// Philosophy:
//
// Human labels are the most expensive data in a document catalog. pdfledger
// keeps them keyed by a stable identity that survives re-inventory, reports
// which labels still match a document and which drifted or were orphaned,
// and merges them with model predictions and a heuristic fallback into one
// decision per document. The human label always wins.
//
// Features:
//
//   - **Stable Identity**: Every document resolves to the same key across runs.
//   - **Read-only Reconciliation**: Reports never touch the label store.
//   - **Safe Writes**: Locked, atomic saves with backups before migrations.
//   - **Pluggable Storage**: CSV with optional git versioning, or SQLite, via `core.Repository`.
//   - **Decision Fusion**: human > model (confidence gated) > heuristic.
//
// Usage:
//
//	svc, err := pdfledger.New("labels/doc_type_labels.csv",
//		pdfledger.WithOutputsRoot("outputs"),
//		pdfledger.WithLogger(logger),
//	)
//
//	// Label a document
//	rec, err := svc.ApplyLabel(ctx, "case/doc1.pdf", "TEXT", false)
package pdfledger
