// Package spelling implements the spelling correction dictionary.
//
// A Dictionary maps words to positive frequencies and indexes them in a
// character trie. Lookup walks the trie with one edit-distance row per node
// and leaves a subtree as soon as every cell of its row exceeds the bound,
// so the nodes visited depend on the query and the bound, not on how many
// words the dictionary holds.
//
// Candidates are verified with the optimal string alignment variant of the
// Damerau-Levenshtein distance and ranked by distance, then frequency, then
// word.
package spelling
