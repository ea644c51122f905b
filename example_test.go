package pdfledger_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aretw0/pdfledger"
	"github.com/aretw0/pdfledger/pkg/core"
)

// Example_basic labels a document and reconciles it against an inventory
// snapshot.
func Example_basic() {
	tmpDir, err := os.MkdirTemp("", "pdfledger-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	svc, err := pdfledger.New(filepath.Join(tmpDir, "labels", "doc_type_labels.csv"))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	// 1. Label a document
	if _, err := svc.ApplyLabel(ctx, `Case\Doc1.pdf`, "TEXT_PDF", false); err != nil {
		log.Fatal(err)
	}

	// 2. Reconcile against the current inventory
	snap := core.Snapshot{ID: "inv_example", Entries: []core.InventoryEntry{
		{RelPath: "Case/Doc1.pdf", ContentHash: "abc"},
		{RelPath: "Case/Doc2.pdf", ContentHash: "def"},
	}}
	res, err := svc.Reconcile(ctx, snap)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("active=%d unlabeled=%d\n", res.Report.Active, res.Report.UnlabeledDocs)
	// Output:
	// active=1 unlabeled=1
}
