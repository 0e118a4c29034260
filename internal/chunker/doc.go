// Package chunker divides document text into overlapping, bounded windows for
// embedding and retrieval.
//
// The chunker prefers to cut at structural boundaries so a window rarely ends
// in the middle of a sentence.
//
// # Basic Usage
//
//	c, err := chunker.New(1000, 200)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for i, text := range c.Chunks(document) {
//	    fmt.Printf("chunk %d: %d runes\n", i, utf8.RuneCountInString(text))
//	}
//
// # Splitting Strategy
//
// Text is split recursively using the first separator that occurs in it:
//
//  1. Blank lines ("\n\n")
//  2. Line breaks ("\n")
//  3. Sentence ends (". ", "? ", "! ")
//  4. Spaces
//  5. Hard cut between runes
//
// Pieces that are still too large are split again with the remaining
// separators. Small pieces are merged greedily up to the window size; each new
// window starts with the trailing pieces of the previous one, up to the
// configured overlap.
//
// # Guarantees
//
//   - No chunk is longer than the window size (measured in runes)
//   - Split is a pure function of (text, size, overlap)
//   - Text no longer than the window yields exactly one chunk
//   - Empty or whitespace-only text yields no chunks
//
// Changing size or overlap changes chunk boundaries and therefore chunk ids;
// an index built with different parameters must be rebuilt.
package chunker
