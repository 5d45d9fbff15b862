// Package seqstore holds a sample's protein set in memory.
package seqstore

import (
	"fmt"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
)

// Store maps sequence identifiers to residues. It is read-only once built
// and safe for concurrent readers.
type Store struct {
	seqs map[string]string
}

// New builds a store from records. Duplicate identifiers are rejected since
// every downstream lookup is keyed by identifier.
func New(records []fasta.Record) (*Store, error) {
	s := &Store{seqs: make(map[string]string, len(records))}
	for _, r := range records {
		if _, dup := s.seqs[r.ID]; dup {
			return nil, fmt.Errorf("duplicate sequence identifier %q", r.ID)
		}
		s.seqs[r.ID] = r.Seq
	}
	return s, nil
}

// Get returns the residues for id.
func (s *Store) Get(id string) (string, bool) {
	seq, ok := s.seqs[id]
	return seq, ok
}

// Len returns the number of sequences.
func (s *Store) Len() int {
	return len(s.seqs)
}
