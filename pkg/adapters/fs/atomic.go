package fs

import (
	"io"
	"os"

	"github.com/aretw0/pdfledger/internal/atomicfile"
)

// TempFilePrefix is the prefix used for temporary atomic write files.
const TempFilePrefix = atomicfile.TempPrefix

// WriteFileAtomic replaces filename with data. Readers see either the old or
// the new content, never a partial file.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	return atomicfile.WriteFile(filename, data, perm)
}

// WriteAtomic is WriteFileAtomic for content produced by a writer func.
func WriteAtomic(filename string, perm os.FileMode, write func(io.Writer) error) error {
	return atomicfile.Write(filename, perm, write)
}
